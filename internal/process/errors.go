package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCommand is wrapped by the SpawnError returned for an empty argv.
var ErrEmptyCommand = errors.New("empty command")

// SpawnError reports that a program could not be started: it was not found,
// is not executable or the fork itself failed. It is never retried here.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Program == "" {
		return fmt.Sprintf("spawn: %v", e.Err)
	}
	return fmt.Sprintf("spawn %q: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Kind names the error in supervisor reports.
func (e *SpawnError) Kind() string { return "process.SpawnError" }

// ExitError describes a child that exited non-zero. Run never returns it;
// callers that treat a non-zero exit as failure get it from Result.Err.
type ExitError struct {
	Argv []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d: %s", e.Code, strings.Join(e.Argv, " "))
}

// Kind names the error in supervisor reports.
func (e *ExitError) Kind() string { return "process.ExitError" }
