package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writePidFileAtomic writes pid to a temp file in the same directory and
// renames it over path, so a concurrent reader never observes a partial
// write (§4.1 invariant).
func writePidFileAtomic(path string, pid int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write temp pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename pid file into place: %w", err)
	}
	return nil
}

// readPidFile reads and parses a pid file written by writePidFileAtomic.
func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file contents %q: %w", string(data), err)
	}
	return pid, nil
}

// ReadPIDFile is the exported form of readPidFile, for the Reconciler's
// boot-time scan (§4.6), which is the only other reader of pid files
// besides the Launcher that writes them.
func ReadPIDFile(path string) (int, error) { return readPidFile(path) }

// RemovePIDFile deletes a stale pid file. Used by the Reconciler when a
// pid file's process is no longer ours or no longer alive.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// openLogFiles opens the stdout/stderr append targets, creating them if
// absent. Both must succeed or neither is left open.
func openLogFiles(logPath, errPath string) (*os.File, *os.File, error) {
	if dir := filepath.Dir(logPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	errFile, err := os.OpenFile(errPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		_ = logFile.Close()
		return nil, nil, fmt.Errorf("open err file: %w", err)
	}
	return logFile, errFile, nil
}
