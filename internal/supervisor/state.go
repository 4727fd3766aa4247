// Package supervisor runs a repeatable workload on a fixed cadence and
// decides when failures are isolated and when they are systemic.
package supervisor

// State represents the current state of a supervised loop.
type State int

const (
	// StateCreated is the initial state before Run is called.
	StateCreated State = iota

	// StateRunning indicates the workload is being invoked.
	StateRunning

	// StateSleeping indicates the loop is waiting for the next attempt.
	StateSleeping

	// StateStopped indicates the loop exited cleanly (stop signal,
	// cancellation or a single run completed).
	StateStopped

	// StateEscalated indicates the loop gave up after a failure streak
	// or a permanent error.
	StateEscalated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// IsActive returns true while the loop is alive.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateSleeping
}

// IsTerminal returns true if the loop has exited.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateEscalated
}
