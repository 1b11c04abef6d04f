package process

import (
	"encoding/json"
	"os"
	"os/exec"

	"github.com/forgekeeper/forgekeeper/internal/logging"
)

// IsHelperInvocation reports whether args (typically os.Args) requests
// the double-fork intermediate rather than normal supervisor startup.
// cmd/forgekeeperd checks this before doing anything else.
func IsHelperInvocation(args []string) bool {
	return len(args) > 1 && args[1] == HelperArg
}

// RunHelper is the entire body of the intermediate process: read the
// spec passed via HelperEnvKey, spawn the real JVM with stdio already
// pointed at the log files, write the pid file, and return. The caller
// (cmd/forgekeeperd's main) must os.Exit immediately after this returns
// so the JVM is orphaned to init rather than staying a child of a
// lingering intermediate.
//
// By the time RunHelper runs, this process is already the session
// leader: the supervisor started it with SysProcAttr.Setsid set.
func RunHelper() int {
	raw := os.Getenv(HelperEnvKey)
	if raw == "" {
		logging.Error().Msg("launch helper invoked without a spec")
		return 1
	}

	var spec helperSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		logging.Error().Err(err).Msg("launch helper: invalid spec")
		return 1
	}

	if len(spec.Argv) == 0 {
		logging.Error().Msg("launch helper: empty argv")
		return 1
	}

	logFile, errFile, err := openLogFiles(spec.LogPath, spec.ErrPath)
	if err != nil {
		logging.Error().Err(err).Msg("launch helper: open log files")
		return 1
	}
	defer logFile.Close()
	defer errFile.Close()

	devnull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		logging.Error().Err(err).Msg("launch helper: open devnull")
		return 1
	}
	defer devnull.Close()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	cmd.Stdin = devnull
	cmd.Stdout = logFile
	cmd.Stderr = errFile

	if err := cmd.Start(); err != nil {
		logging.Error().Err(err).Msg("launch helper: start grandchild")
		return 1
	}

	if err := writePidFileAtomic(spec.PidFile, cmd.Process.Pid); err != nil {
		logging.Error().Err(err).Msg("launch helper: write pid file")
		_ = cmd.Process.Kill()
		return 1
	}

	// Release so the grandchild survives this process's exit rather
	// than being reaped or signaled as a child when we return.
	if err := cmd.Process.Release(); err != nil {
		logging.Warn().Err(err).Msg("launch helper: release grandchild")
	}

	logging.Info().Int("pid", cmd.Process.Pid).Str("cwd", spec.Cwd).Msg("launched detached server process")
	return 0
}
