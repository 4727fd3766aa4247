// Package stats tracks attempt statistics for a supervised loop and formats
// the exit summary.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// RecentAttemptsSize is the number of attempts kept for the dashboard.
const RecentAttemptsSize = 60

// Outcome names, matching the supervisor's.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeStop      = "stop"
	OutcomeCancelled = "cancelled"
	OutcomePermanent = "permanent"
)

// AttemptRecord is one finished attempt as seen by the stats layer.
type AttemptRecord struct {
	Number      int
	Outcome     string
	Kind        string // error kind, failures only
	Err         string
	Started     time.Time
	Duration    time.Duration
	ExitCode    int // -1 when no process ran
	Consecutive int
}

// LoopStats holds statistics for one loop.
//
// Thread-safe: counters are atomics, the digest and rings are under mu.
type LoopStats struct {
	StartTime time.Time

	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	stops     atomic.Int64
	cancelled atomic.Int64
	permanent atomic.Int64

	consecutive atomic.Int64
	maxStreak   atomic.Int64

	mu             sync.Mutex
	durationDigest *tdigest.TDigest
	durationN      int64
	minDuration    time.Duration
	maxDuration    time.Duration
	sumDuration    time.Duration
	kinds          map[string]int64
	lastFailure    *AttemptRecord
	lastSuccess    time.Time

	recent    []AttemptRecord
	recentIdx int
	recentN   int
}

// NewLoopStats creates empty stats starting now.
func NewLoopStats() *LoopStats {
	return &LoopStats{
		StartTime:      time.Now(),
		durationDigest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		kinds:          make(map[string]int64),
		recent:         make([]AttemptRecord, RecentAttemptsSize),
	}
}

// Record adds one finished attempt.
func (s *LoopStats) Record(rec AttemptRecord) {
	s.attempts.Add(1)
	switch rec.Outcome {
	case OutcomeSuccess:
		s.successes.Add(1)
	case OutcomeFailure:
		s.failures.Add(1)
	case OutcomeStop:
		s.stops.Add(1)
	case OutcomeCancelled:
		s.cancelled.Add(1)
	case OutcomePermanent:
		s.permanent.Add(1)
	}

	s.consecutive.Store(int64(rec.Consecutive))
	for {
		peak := s.maxStreak.Load()
		if int64(rec.Consecutive) <= peak || s.maxStreak.CompareAndSwap(peak, int64(rec.Consecutive)) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancelled attempts were cut short; they would skew the distribution
	if rec.Outcome != OutcomeCancelled {
		s.durationDigest.Add(float64(rec.Duration.Nanoseconds()), 1)
		s.durationN++
		if s.durationN == 1 || rec.Duration < s.minDuration {
			s.minDuration = rec.Duration
		}
		if rec.Duration > s.maxDuration {
			s.maxDuration = rec.Duration
		}
		s.sumDuration += rec.Duration
	}

	switch rec.Outcome {
	case OutcomeFailure, OutcomePermanent:
		s.kinds[rec.Kind]++
		r := rec
		s.lastFailure = &r
	case OutcomeSuccess:
		s.lastSuccess = rec.Started.Add(rec.Duration)
	}

	s.recent[s.recentIdx] = rec
	s.recentIdx = (s.recentIdx + 1) % RecentAttemptsSize
	if s.recentN < RecentAttemptsSize {
		s.recentN++
	}
}

// Attempts returns the total number of recorded attempts.
func (s *LoopStats) Attempts() int64 {
	return s.attempts.Load()
}

// Consecutive returns the current failure streak.
func (s *LoopStats) Consecutive() int64 {
	return s.consecutive.Load()
}

// Snapshot is a point-in-time copy of LoopStats.
type Snapshot struct {
	Elapsed time.Duration

	Attempts  int64
	Successes int64
	Failures  int64
	Stops     int64
	Cancelled int64
	Permanent int64

	Consecutive int64
	MaxStreak   int64

	DurationMin  time.Duration
	DurationMax  time.Duration
	DurationMean time.Duration
	DurationP50  time.Duration
	DurationP95  time.Duration
	DurationP99  time.Duration

	// FailureKinds sorted by count, most frequent first.
	FailureKinds []KindCount
	LastFailure  *AttemptRecord
	LastSuccess  time.Time

	// Recent attempts, oldest first.
	Recent []AttemptRecord
}

// KindCount is one row of the failure breakdown.
type KindCount struct {
	Kind  string
	Count int64
}

// SuccessRate returns successes over attempts that ran to completion.
func (s *Snapshot) SuccessRate() float64 {
	done := s.Successes + s.Failures + s.Permanent
	if done == 0 {
		return 0
	}
	return float64(s.Successes) / float64(done)
}

// Snapshot returns a consistent copy of the statistics.
func (s *LoopStats) Snapshot() *Snapshot {
	snap := &Snapshot{
		Elapsed:     time.Since(s.StartTime),
		Attempts:    s.attempts.Load(),
		Successes:   s.successes.Load(),
		Failures:    s.failures.Load(),
		Stops:       s.stops.Load(),
		Cancelled:   s.cancelled.Load(),
		Permanent:   s.permanent.Load(),
		Consecutive: s.consecutive.Load(),
		MaxStreak:   s.maxStreak.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.durationN > 0 {
		snap.DurationMin = s.minDuration
		snap.DurationMax = s.maxDuration
		snap.DurationMean = s.sumDuration / time.Duration(s.durationN)
		snap.DurationP50 = time.Duration(s.durationDigest.Quantile(0.50))
		snap.DurationP95 = time.Duration(s.durationDigest.Quantile(0.95))
		snap.DurationP99 = time.Duration(s.durationDigest.Quantile(0.99))
	}

	for kind, count := range s.kinds {
		snap.FailureKinds = append(snap.FailureKinds, KindCount{Kind: kind, Count: count})
	}
	sort.Slice(snap.FailureKinds, func(i, j int) bool {
		a, b := snap.FailureKinds[i], snap.FailureKinds[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Kind < b.Kind
	})

	if s.lastFailure != nil {
		r := *s.lastFailure
		snap.LastFailure = &r
	}
	snap.LastSuccess = s.lastSuccess

	snap.Recent = make([]AttemptRecord, 0, s.recentN)
	for i := 0; i < s.recentN; i++ {
		idx := (s.recentIdx - s.recentN + i + RecentAttemptsSize) % RecentAttemptsSize
		snap.Recent = append(snap.Recent, s.recent[idx])
	}

	return snap
}
