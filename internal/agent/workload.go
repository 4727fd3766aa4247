package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-service-loop/internal/process"
	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
)

// TimeoutError is the failure recorded when an attempt outlives its
// per-attempt timeout and the command is killed.
type TimeoutError struct {
	Argv     []string
	Timeout  time.Duration
	ExitCode int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s (exit status %d): %s",
		e.Timeout, e.ExitCode, process.CommandString(e.Argv))
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Kind names the failure in diagnostic reports.
func (e *TimeoutError) Kind() string { return "agent.TimeoutError" }

// CommandWorkload runs one external command per attempt.
type CommandWorkload struct {
	Argv    []string
	Dir     string
	Env     []string
	Output  process.Output
	Timeout time.Duration // 0 = none

	KillGrace time.Duration

	// StopExitCode ends the loop cleanly when the command exits with it.
	// Negative disables it.
	StopExitCode int

	Logger *slog.Logger

	// OnResult is called with every result, including those of attempts
	// that timed out.
	OnResult func(res *process.Result)

	// AfterAttempt runs once the command has exited and its output is
	// drained, whatever the outcome.
	AfterAttempt func()
}

// Run executes the command once. It maps the result onto the supervisor's
// contract: exit 0 is success, StopExitCode is ErrStop, other exits are
// *process.ExitError failures and spawn errors are permanent.
func (w *CommandWorkload) Run(ctx context.Context) error {
	if w.AfterAttempt != nil {
		defer w.AfterAttempt()
	}

	attemptCtx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	res, err := process.Command{
		Argv:      w.Argv,
		Dir:       w.Dir,
		Env:       w.Env,
		Output:    w.Output,
		KillGrace: w.KillGrace,
		Logger:    w.Logger,
	}.Run(attemptCtx)

	if res != nil && w.OnResult != nil {
		w.OnResult(res)
	}

	if err != nil {
		var spawnErr *process.SpawnError
		switch {
		case errors.As(err, &spawnErr):
			// A missing or non-executable program does not heal by retrying.
			return supervisor.Permanent(err)
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded) && res != nil:
			return &TimeoutError{Argv: w.Argv, Timeout: w.Timeout, ExitCode: res.ExitCode}
		default:
			return err
		}
	}

	if w.StopExitCode >= 0 && res.ExitCode == w.StopExitCode {
		return fmt.Errorf("%w: exit status %d", supervisor.ErrStop, res.ExitCode)
	}
	return res.Err()
}
