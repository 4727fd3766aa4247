package supervisor

import (
	"context"
	"errors"
	"time"
)

// Workload is one repeatable unit of work. A nil return is a success,
// ErrStop ends the loop cleanly, Permanent errors end it at once and any other
// error is a failure that counts toward the streak.
type Workload func(ctx context.Context) error

// Outcome classifies a single attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeStop
	OutcomeCancelled
	OutcomePermanent
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeStop:
		return "stop"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps a workload's return value to an Outcome. The stop signal wins
// over everything else; an error returned while ctx is done counts as
// cancellation, not failure.
func Classify(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrStop):
		return OutcomeStop
	case ctx.Err() != nil:
		return OutcomeCancelled
	case IsPermanent(err):
		return OutcomePermanent
	default:
		return OutcomeFailure
	}
}

// Attempt describes one finished workload invocation. It is passed to
// Callbacks.OnAttempt.
type Attempt struct {
	Number      int
	Outcome     Outcome
	Err         error // for OutcomePermanent, the error given to Permanent
	Started     time.Time
	Duration    time.Duration
	Consecutive int // failure streak after this attempt
}
