// Package timeseries provides time-windowed attempt rates for a supervised
// loop.
//
// It tracks cumulative attempt and failure counts and computes rolling rates
// over 1, 5 and 15 minute windows, the way load averages are reported.
//
// Thread-safe: Add() uses atomic int64, Stats() acquires read lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain.
	ringBufferSize = 300

	window1m  = 1 * time.Minute
	window5m  = 5 * time.Minute
	window15m = 15 * time.Minute
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative counters.
type sample struct {
	timestamp time.Time
	attempts  int64
	failures  int64
}

// RateTracker tracks cumulative attempts and failures and computes rolling
// rates over fixed windows.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(failed)     // per attempt (lock-free)
//	tracker.RecordSample()  // after Add, or from a ticker
//	stats := tracker.Stats()
type RateTracker struct {
	attempts atomic.Int64
	failures atomic.Int64

	// Ring buffer of samples for rolling calculations
	samples  []sample
	writeIdx int // Next write position once the buffer is full
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Window holds the rates observed over one window.
type Window struct {
	PerMinute    float64 // attempts per minute
	FailureRatio float64 // failures / attempts, 0 when there were none
}

// RateStats contains computed rolling rates at a point in time.
type RateStats struct {
	Attempts int64
	Failures int64

	Last1m  Window
	Last5m  Window
	Last15m Window
	Overall Window
}

// NewRateTracker creates a new tracker with real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add counts one finished attempt.
func (t *RateTracker) Add(failed bool) {
	t.attempts.Add(1)
	if failed {
		t.failures.Add(1)
	}
}

// RecordSample records the current counters with a timestamp.
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	s := sample{
		timestamp: now,
		attempts:  t.attempts.Load(),
		failures:  t.failures.Load(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.writeIdx] = s
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// Stats computes the current rates. Windows longer than the retained history
// use the oldest sample available.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	current := sample{
		timestamp: now,
		attempts:  t.attempts.Load(),
		failures:  t.failures.Load(),
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{
		Attempts: current.attempts,
		Failures: current.failures,
		Last1m:   t.windowRate(current, t.baseline(now, window1m)),
		Last5m:   t.windowRate(current, t.baseline(now, window5m)),
		Last15m:  t.windowRate(current, t.baseline(now, window15m)),
	}
	stats.Overall = t.windowRate(current, &sample{timestamp: t.startTime})

	return stats
}

// baseline returns the sample closest to (but not after) now-window.
// Must be called with mu held (at least RLock).
func (t *RateTracker) baseline(now time.Time, window time.Duration) *sample {
	targetTime := now.Add(-window)

	var best *sample
	bestDiff := time.Duration(-1)
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}

	if best == nil {
		best = t.oldestSample()
	}
	return best
}

func (t *RateTracker) windowRate(current sample, base *sample) Window {
	if base == nil {
		return Window{}
	}
	elapsed := current.timestamp.Sub(base.timestamp)
	attempts := current.attempts - base.attempts
	failures := current.failures - base.failures

	var w Window
	if elapsed > 0 {
		w.PerMinute = float64(attempts) / elapsed.Minutes()
	}
	if attempts > 0 {
		w.FailureRatio = float64(failures) / float64(attempts)
	}
	return w
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}
