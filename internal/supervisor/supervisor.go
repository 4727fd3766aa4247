package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// DefaultConsecutive is the failure streak that ends a loop when
// Config.Consecutive is not set.
const DefaultConsecutive = 3

// Callbacks contains optional callback functions for loop events.
// They run on the loop goroutine and must not block.
type Callbacks struct {
	// OnStateChange is called when the loop state changes.
	OnStateChange func(oldState, newState State)

	// OnAttempt is called after every workload invocation.
	OnAttempt func(a Attempt)

	// OnEscalate is called with the retained streak right before the loop
	// returns the last error.
	OnEscalate func(records []FailureRecord)
}

// Config holds configuration for creating a new Loop.
type Config struct {
	Interval    time.Duration
	Consecutive int       // <= 0 means DefaultConsecutive
	Out         io.Writer // escalation report; nil means os.Stdout
	Logger      *slog.Logger
	Callbacks   Callbacks

	// Backoff, when set, replaces Interval as the delay after a failed
	// attempt. A success resets it.
	Backoff *BackoffConfig

	// JitterPct spreads every delay by ±JitterPct/2.
	JitterPct float64
	Seed      int64

	// RunOnce makes Run return after the first attempt.
	RunOnce bool
}

// Stats is a point-in-time view of a loop's counters.
type Stats struct {
	Attempts    int
	Successes   int
	Failures    int
	Consecutive int
	Threshold   int
	LastError   error
	LastAttempt time.Time
}

// Loop invokes a workload sequentially, one attempt at a time, until it is
// told to stop, its context ends or failures reach the threshold.
type Loop struct {
	interval  time.Duration
	threshold int
	out       io.Writer
	logger    *slog.Logger
	callbacks Callbacks
	backoff   *Backoff
	jitter    *Jitter
	runOnce   bool

	mu       sync.RWMutex
	state    State
	stats    Stats
	failures *FailureRing
}

// New creates a new Loop with the given configuration.
func New(cfg Config) *Loop {
	threshold := cfg.Consecutive
	if threshold <= 0 {
		threshold = DefaultConsecutive
	}

	interval := cfg.Interval
	if interval < 0 {
		interval = 0
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	l := &Loop{
		interval:  interval,
		threshold: threshold,
		out:       out,
		logger:    logger,
		callbacks: cfg.Callbacks,
		jitter:    NewJitter(seed, cfg.JitterPct),
		runOnce:   cfg.RunOnce,
		failures:  NewFailureRing(threshold),
		state:     StateCreated,
		stats:     Stats{Threshold: threshold},
	}
	if cfg.Backoff != nil {
		l.backoff = NewBackoff(seed, *cfg.Backoff)
	}
	return l
}

// Run invokes workload every interval until it returns ErrStop, the
// context is cancelled or it fails consecutive times in a row, using os.Stdout
// for the escalation report.
func Run(ctx context.Context, workload Workload, interval time.Duration, consecutive int) error {
	return New(Config{Interval: interval, Consecutive: consecutive}).Run(ctx, workload)
}

// Run starts the loop and blocks until it ends.
//
// It returns nil after a stop signal (or a successful single run), ctx.Err()
// after cancellation and, on escalation, the exact error returned by the last
// failed attempt. A Loop must not be run twice.
func (l *Loop) Run(ctx context.Context, workload Workload) error {
	if workload == nil {
		return errors.New("supervisor: nil workload")
	}

	l.logger.Debug("loop_starting",
		"interval", l.interval.String(),
		"consecutive", l.threshold,
	)

	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateStopped)
			l.logger.Debug("loop_stopped", "reason", "context_cancelled")
			return err
		}

		l.setState(StateRunning)
		a := l.attempt(ctx, workload)

		switch a.Outcome {
		case OutcomeStop:
			l.setState(StateStopped)
			l.logger.Debug("loop_stopped", "reason", "stop_requested", "attempt", a.Number)
			return nil

		case OutcomeCancelled:
			l.setState(StateStopped)
			l.logger.Debug("loop_stopped", "reason", "context_cancelled", "attempt", a.Number)
			return ctx.Err()

		case OutcomePermanent:
			l.setState(StateEscalated)
			l.logger.Error("loop_aborted",
				"attempt", a.Number,
				"error", a.Err,
				"kind", ErrorKind(a.Err),
			)
			return a.Err

		case OutcomeFailure:
			if a.Consecutive >= l.threshold {
				l.escalate()
				return a.Err
			}
		}

		if l.runOnce {
			l.setState(StateStopped)
			if a.Outcome == OutcomeFailure {
				return a.Err
			}
			return nil
		}

		l.setState(StateSleeping)
		if err := l.sleep(ctx, l.nextDelay(a.Outcome == OutcomeFailure)); err != nil {
			l.setState(StateStopped)
			l.logger.Debug("loop_stopped", "reason", "context_cancelled")
			return err
		}
	}
}

// attempt invokes the workload once and updates counters and the failure
// ring according to the outcome.
func (l *Loop) attempt(ctx context.Context, workload Workload) Attempt {
	l.mu.Lock()
	l.stats.Attempts++
	number := l.stats.Attempts
	l.mu.Unlock()

	started := time.Now()
	err := invoke(ctx, workload)
	a := Attempt{
		Number:   number,
		Outcome:  Classify(ctx, err),
		Err:      err,
		Started:  started,
		Duration: time.Since(started),
	}
	if a.Outcome == OutcomePermanent {
		err = unwrapPermanent(err)
		a.Err = err
	}

	l.mu.Lock()
	l.stats.LastAttempt = started
	switch a.Outcome {
	case OutcomeSuccess:
		l.stats.Successes++
		l.stats.Consecutive = 0
		l.failures.Reset()
		if l.backoff != nil {
			l.backoff.Reset()
		}
	case OutcomeFailure:
		l.stats.Failures++
		l.stats.Consecutive++
		l.stats.LastError = err
		l.failures.Push(FailureRecord{Attempt: number, Err: err, Time: started})
	case OutcomePermanent:
		l.stats.Failures++
		l.stats.LastError = err
	}
	a.Consecutive = l.stats.Consecutive
	l.mu.Unlock()

	if a.Outcome == OutcomeFailure {
		l.logger.Warn("attempt_failed",
			"attempt", number,
			"consecutive", a.Consecutive,
			"threshold", l.threshold,
			"kind", ErrorKind(err),
			"error", err,
		)
	}

	if l.callbacks.OnAttempt != nil {
		l.callbacks.OnAttempt(a)
	}
	return a
}

// invoke runs the workload, turning a panic into a *PanicError failure.
func invoke(ctx context.Context, workload Workload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return workload(ctx)
}

// escalate writes the diagnostic report and marks the loop escalated.
func (l *Loop) escalate() {
	records := l.RecentFailures()

	if _, err := io.WriteString(l.out, FormatReport(l.threshold, records)); err != nil {
		l.logger.Error("report_write_failed", "error", err)
	}

	attrs := []any{
		"consecutive", l.threshold,
		"attempts", l.Stats().Attempts,
	}
	if last, ok := l.failures.Last(); ok {
		attrs = append(attrs, "last_error", last.Err, "last_attempt", last.Attempt)
	}
	l.logger.Error("loop_escalated", attrs...)

	if l.callbacks.OnEscalate != nil {
		l.callbacks.OnEscalate(records)
	}
	l.setState(StateEscalated)
}

// nextDelay returns how long to wait before the next attempt.
func (l *Loop) nextDelay(failed bool) time.Duration {
	delay := l.interval
	if failed && l.backoff != nil {
		delay = l.backoff.Next()
		l.logger.Debug("backoff_delay",
			"delay", delay.String(),
			"step", l.backoff.Attempts(),
		)
	}
	return l.jitter.Apply(delay)
}

// sleep waits for d or until ctx is done. A zero delay still yields to the
// scheduler so other goroutines are not starved by a tight loop.
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// setState updates the state and calls the callback if registered.
func (l *Loop) setState(newState State) {
	l.mu.Lock()
	oldState := l.state
	l.state = newState
	l.mu.Unlock()

	if l.callbacks.OnStateChange != nil && oldState != newState {
		l.callbacks.OnStateChange(oldState, newState)
	}
}

// Stats returns a snapshot of the loop counters. Safe to call from any
// goroutine.
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Threshold returns the configured consecutive failure threshold.
func (l *Loop) Threshold() int {
	return l.threshold
}

// Interval returns the configured polling interval.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// RecentFailures returns the failures of the current streak, oldest first.
func (l *Loop) RecentFailures() []FailureRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failures.Records()
}
