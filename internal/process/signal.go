package process

import (
	"fmt"
	"syscall"
)

// Terminate sends SIGTERM to pid, requesting an orderly shutdown.
func Terminate(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("SIGTERM pid %d: %w", pid, err)
	}
	return nil
}

// Kill sends SIGKILL to pid, forcing immediate termination.
func Kill(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("SIGKILL pid %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether pid refers to a live process, via a zero signal.
func Alive(pid int) bool {
	return pidAlive(pid)
}
