package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// ExtractExitCode extracts the exit code from a Wait() error.
// A child killed by a signal reports 128 + the signal number, as shells do.
func ExtractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stateExitCode(exitErr.ProcessState)
	}

	// Unknown error, assume exit code 1
	return 1
}

// stateExitCode reads the exit code from the child's own wait status.
func stateExitCode(ps *os.ProcessState) int {
	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return ps.ExitCode()
}
