// Package process runs external programs, routes their output and reports
// the exact exit code.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultKillGrace is how long a cancelled child gets between SIGTERM and
// SIGKILL.
const DefaultKillGrace = 5 * time.Second

// Command describes one program invocation.
type Command struct {
	Argv []string
	Dir  string
	Env  []string // nil inherits the parent environment

	Output Output

	// KillGrace bounds the wait after cancellation before the process group
	// is killed and output pipes are closed. <= 0 means DefaultKillGrace.
	KillGrace time.Duration

	// Logger receives process_started and process_exited events. nil logs
	// nothing.
	Logger *slog.Logger
}

// Result captures the outcome of a process execution.
type Result struct {
	Argv      []string
	PID       int
	ExitCode  int
	StartTime time.Time
	EndTime   time.Time

	// Stdout and Stderr hold the output of streams routed with Capture.
	Stdout []byte
	Stderr []byte
}

// Duration returns how long the process ran.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Err returns an *ExitError for a non-zero exit and nil otherwise.
func (r *Result) Err() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{Argv: r.Argv, Code: r.ExitCode}
}

// Run executes argv with the given output routing and waits for it to exit.
//
// A non-zero exit is reported through Result.ExitCode, not as an error.
// The error is a *SpawnError when the program could not be started and
// ctx.Err() when the context ended while the child ran.
func Run(ctx context.Context, argv []string, out Output) (*Result, error) {
	return Command{Argv: argv, Output: out}.Run(ctx)
}

// Run executes the command and waits for the child to exit and for all of its
// output to be delivered.
func (c Command) Run(ctx context.Context) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, &SpawnError{Err: ErrEmptyCommand}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	program := c.Argv[0]
	cmd := exec.CommandContext(ctx, program, c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	stdout, stdoutBuf := c.Output.Stdout.destination(os.Stdout)
	stderr, stderrBuf := c.Output.Stderr.destination(os.Stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	configureProcessGroup(cmd)
	grace := c.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	cmd.WaitDelay = grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &SpawnError{Program: program, Err: err}
	}

	res := &Result{
		Argv:      append([]string(nil), c.Argv...),
		PID:       cmd.Process.Pid,
		StartTime: start,
	}
	c.log().Debug("process_started",
		"pid", res.PID,
		"command", CommandString(c.Argv),
	)

	waitErr := cmd.Wait()
	res.EndTime = time.Now()
	// Wait also fails when a sink breaks or WaitDelay expires; the child's
	// status is still exact in that case.
	if cmd.ProcessState != nil {
		res.ExitCode = stateExitCode(cmd.ProcessState)
	} else {
		res.ExitCode = ExtractExitCode(waitErr)
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		killProcessGroup(res.PID)
	}

	if stdoutBuf != nil {
		res.Stdout = stdoutBuf.Bytes()
	}
	if stderrBuf != nil {
		res.Stderr = stderrBuf.Bytes()
	}

	c.log().Debug("process_exited",
		"pid", res.PID,
		"exit_code", res.ExitCode,
		"uptime", res.Duration().String(),
		"cancelled", ctxErr != nil,
	)

	if ctxErr != nil {
		return res, ctxErr
	}

	// Anything other than an exit status means output could not be
	// delivered in full, e.g. a sink failed or a grandchild kept the
	// pipes open past WaitDelay.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("wait %s: %w", program, waitErr)
	}
	return res, nil
}

func (c Command) log() *slog.Logger {
	if c.Logger == nil {
		return discardLogger
	}
	return c.Logger
}

var discardLogger = slog.New(slog.DiscardHandler)
