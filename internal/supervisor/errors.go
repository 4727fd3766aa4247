package supervisor

import (
	"errors"
	"fmt"
)

// ErrStop is returned (or wrapped) by a workload to end the loop cleanly.
// It is never counted as a failure and never produces a report.
var ErrStop = errors.New("stop requested")

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the loop returns it immediately instead of counting
// it toward the failure streak. The loop returns the inner error, not the
// wrapper. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// unwrapPermanent returns the error passed to Permanent.
func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}

// PanicError is the failure recorded when a workload panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workload panicked: %v", e.Value)
}

// Kind names the failure in diagnostic reports.
func (e *PanicError) Kind() string {
	return "panic"
}
