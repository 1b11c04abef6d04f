package process

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/forgekeeper/forgekeeper/internal/logging"
)

// Strategy records which spawn path actually produced the running
// process, for diagnostics (§4.1 Fallback).
type Strategy string

const (
	// StrategyDoubleFork is the preferred path: an intermediate session
	// leader spawns the JVM and exits immediately, orphaning it to init.
	StrategyDoubleFork Strategy = "double_fork"
	// StrategySingleSetsid is the fallback: the supervisor itself spawns
	// the JVM directly into a new session, remaining its direct parent.
	StrategySingleSetsid Strategy = "single_setsid"
)

// HelperEnvKey is the environment variable the intermediate helper
// process reads its launch spec from. HelperArg is the argv[1] value
// cmd/forgekeeperd checks for to decide whether to re-exec into
// RunHelper instead of the normal supervisor entry point.
const (
	HelperEnvKey = "FORGEKEEPER_LAUNCH_SPEC"
	HelperArg    = "__process-launch-helper__"
)

// Spec describes a single Launch request (§4.1 Contract).
type Spec struct {
	Argv    []string
	Cwd     string
	Env     []string
	LogPath string
	ErrPath string
	// PidFile defaults to <Cwd>/server.pid when empty.
	PidFile string
}

// Result is returned on a successful Launch.
type Result struct {
	PID      int
	Strategy Strategy
	// StdinWriter is non-nil only for StrategySingleSetsid: a true
	// double-fork orphan's stdin is bound to the null device per §4.1(c)
	// and has no writer the supervisor can hold onto, matching the
	// "stdin unavailable" case §4.3 describes for Reconciler-adopted
	// processes. The fallback strategy instead keeps the write end of a
	// pipe so Supervisor.Command can still fall back to stdin when RCON
	// is unavailable.
	StdinWriter io.WriteCloser
}

// LaunchError wraps any failure prior to a confirmed-alive child process.
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch failed at %s: %v", e.Stage, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// Launcher spawns detached JVM processes per §4.1.
type Launcher struct {
	// selfPath is the forgekeeper binary's own path, used to re-exec the
	// intermediate helper. Resolved once and cached.
	selfPath string
}

// NewLauncher resolves the running binary's path so Launch can re-exec
// itself as the double-fork intermediate.
func NewLauncher() (*Launcher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable path: %w", err)
	}
	return &Launcher{selfPath: self}, nil
}

// Launch starts spec.Argv detached from the supervisor's session. It
// tries the double-fork path first and falls back to a single setsid
// spawn if the intermediate cannot be started. On any failure prior to a
// confirmed-alive PID, no pid file is left behind.
func (l *Launcher) Launch(spec Spec) (*Result, error) {
	if len(spec.Argv) == 0 {
		return nil, &LaunchError{Stage: "validate", Err: fmt.Errorf("argv must not be empty")}
	}
	pidFile := spec.PidFile
	if pidFile == "" {
		pidFile = filepath.Join(spec.Cwd, "server.pid")
	}

	res, err := l.launchDoubleFork(spec, pidFile)
	if err == nil {
		return res, nil
	}
	logging.Warn().Err(err).Str("cwd", spec.Cwd).Msg("double-fork launch failed, falling back to single setsid")
	removeQuietly(pidFile)

	res, err = l.launchSingleSetsid(spec, pidFile)
	if err != nil {
		removeQuietly(pidFile)
		return nil, err
	}
	return res, nil
}

// launchDoubleFork re-execs the current binary in helper mode. The
// helper becomes a session leader (SysProcAttr.Setsid), opens the log
// files, spawns the real JVM with stdio redirected to them, writes the
// pid file via atomic rename, and exits immediately — orphaning the JVM
// to init. The supervisor only waits for the short-lived intermediate.
func (l *Launcher) launchDoubleFork(spec Spec, pidFile string) (*Result, error) {
	encoded, err := encodeHelperSpec(spec, pidFile)
	if err != nil {
		return nil, &LaunchError{Stage: "encode", Err: err}
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, &LaunchError{Stage: "devnull", Err: err}
	}
	defer devnull.Close()

	intermediate := exec.Command(l.selfPath, HelperArg)
	intermediate.Env = append(os.Environ(), HelperEnvKey+"="+encoded)
	intermediate.Stdin = devnull
	intermediate.Stdout = devnull
	intermediate.Stderr = devnull
	intermediate.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := intermediate.Start(); err != nil {
		return nil, &LaunchError{Stage: "start_intermediate", Err: err}
	}

	if err := intermediate.Wait(); err != nil {
		return nil, &LaunchError{Stage: "wait_intermediate", Err: err}
	}

	pid, err := readPidFile(pidFile)
	if err != nil {
		return nil, &LaunchError{Stage: "read_pidfile", Err: err}
	}
	if !pidAlive(pid) {
		return nil, &LaunchError{Stage: "verify_alive", Err: fmt.Errorf("pid %d not alive after launch", pid)}
	}

	return &Result{PID: pid, Strategy: StrategyDoubleFork}, nil
}

// launchSingleSetsid spawns the JVM directly as a child of the
// supervisor process, in a new session. Used only when the double-fork
// intermediate could not be started at all (e.g. re-exec unsupported).
func (l *Launcher) launchSingleSetsid(spec Spec, pidFile string) (*Result, error) {
	logFile, errFile, err := openLogFiles(spec.LogPath, spec.ErrPath)
	if err != nil {
		return nil, &LaunchError{Stage: "open_logs", Err: err}
	}
	defer logFile.Close()
	defer errFile.Close()

	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Stage: "stdin_pipe", Err: err}
	}
	defer stdinReader.Close()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	cmd.Stdin = stdinReader
	cmd.Stdout = logFile
	cmd.Stderr = errFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		stdinWriter.Close()
		return nil, &LaunchError{Stage: "start", Err: err}
	}

	if err := writePidFileAtomic(pidFile, cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		stdinWriter.Close()
		return nil, &LaunchError{Stage: "write_pidfile", Err: err}
	}

	return &Result{PID: cmd.Process.Pid, Strategy: StrategySingleSetsid, StdinWriter: stdinWriter}, nil
}

// helperSpec is the JSON payload passed to the re-exec'd helper via
// HelperEnvKey. Only plain data crosses the process boundary.
type helperSpec struct {
	Argv    []string `json:"argv"`
	Cwd     string   `json:"cwd"`
	Env     []string `json:"env"`
	LogPath string   `json:"log_path"`
	ErrPath string   `json:"err_path"`
	PidFile string   `json:"pid_file"`
}

func encodeHelperSpec(spec Spec, pidFile string) (string, error) {
	payload, err := json.Marshal(helperSpec{
		Argv:    spec.Argv,
		Cwd:     spec.Cwd,
		Env:     spec.Env,
		LogPath: spec.LogPath,
		ErrPath: spec.ErrPath,
		PidFile: pidFile,
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("path", path).Msg("failed to remove stale pid file")
	}
}

// pidAlive checks liveness with signal 0, which delivers no signal but
// still reports ESRCH if the process does not exist.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
