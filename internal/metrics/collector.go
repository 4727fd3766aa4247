// Package metrics provides Prometheus metrics for go-service-loop.
//
// Every Collector owns its metrics and registers them with the registry it
// is given, so several loops (or tests) can live in one process.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "service_loop"

// Attempt outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeStop      = "stop"
	OutcomeCancelled = "cancelled"
	OutcomePermanent = "permanent"
)

// States reported by the loop_state gauge.
var States = []string{"created", "running", "sleeping", "stopped", "escalated"}

// DurationBuckets covers quick health probes up to long batch jobs.
var DurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	RunID       string
	Command     string
	Version     string
	Interval    time.Duration
	Consecutive int
}

// Collector manages the Prometheus metrics of one supervised loop.
type Collector struct {
	info            *prometheus.GaugeVec
	attempts        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	consecutive     prometheus.Gauge
	threshold       prometheus.Gauge
	interval        prometheus.Gauge
	escalations     prometheus.Counter
	attemptDuration prometheus.Histogram
	exits           *prometheus.CounterVec
	lastSuccess     prometheus.Gauge
	state           *prometheus.GaugeVec

	// For summary generation
	mu        sync.Mutex
	startTime time.Time
	exitCodes map[int]int64
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the supervised loop (value always 1)",
		}, []string{"version", "command", "run_id"}),

		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Workload invocations by outcome",
		}, []string{"outcome"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed attempts by error kind",
		}, []string{"kind"}),

		consecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Length of the current failure streak",
		}),

		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failure_threshold",
			Help:      "Failure streak that stops the loop",
		}),

		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interval_seconds",
			Help:      "Configured delay between attempts",
		}),

		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Times the loop stopped on a failure streak",
		}),

		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of each workload invocation",
			Buckets:   DurationBuckets,
		}),

		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Command exits by category (success, error, signal)",
		}, []string{"category"}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful attempt",
		}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current loop state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),

		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.attempts,
		c.failures,
		c.consecutive,
		c.threshold,
		c.interval,
		c.escalations,
		c.attemptDuration,
		c.exits,
		c.lastSuccess,
		c.state,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Command, cfg.RunID).Set(1)
	c.threshold.Set(float64(cfg.Consecutive))
	c.interval.Set(cfg.Interval.Seconds())

	// Pre-create label sets so they export as 0 before the first event
	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure, OutcomeStop, OutcomeCancelled, OutcomePermanent} {
		c.attempts.WithLabelValues(outcome)
	}
	for _, category := range []string{"success", "error", "signal"} {
		c.exits.WithLabelValues(category)
	}
	c.SetState("created")

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RecordAttempt records one workload invocation. kind is only used for
// failures.
func (c *Collector) RecordAttempt(outcome, kind string, d time.Duration, consecutive int) {
	c.attempts.WithLabelValues(outcome).Inc()
	c.attemptDuration.Observe(d.Seconds())
	c.consecutive.Set(float64(consecutive))

	switch outcome {
	case OutcomeSuccess:
		c.lastSuccess.Set(float64(time.Now().UnixNano()) / 1e9)
	case OutcomeFailure, OutcomePermanent:
		c.failures.WithLabelValues(kind).Inc()
	}
}

// RecordExit records a process exit event.
func (c *Collector) RecordExit(exitCode int) {
	c.exits.WithLabelValues(ExitCategory(exitCode)).Inc()

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.mu.Unlock()
}

// RecordEscalation records the loop giving up on a failure streak.
func (c *Collector) RecordEscalation() {
	c.escalations.Inc()
}

// SetState marks state as the active loop state.
func (c *Collector) SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}

// ExitCategory buckets an exit code the way shells report them.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a point-in-time copy of the collector's values.
type Snapshot struct {
	Attempts      map[string]float64
	Escalations   float64
	Consecutive   float64
	DurationCount uint64
	DurationSum   float64
	ExitCodes     map[int]int64
	Uptime        time.Duration
}

// Total returns the number of attempts over all outcomes.
func (s Snapshot) Total() float64 {
	var total float64
	for _, v := range s.Attempts {
		total += v
	}
	return total
}

// Snapshot reads the current metric values.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Attempts:  make(map[string]float64),
		ExitCodes: make(map[int]int64),
	}

	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure, OutcomeStop, OutcomeCancelled, OutcomePermanent} {
		s.Attempts[outcome] = readCounter(c.attempts.WithLabelValues(outcome))
	}
	s.Escalations = readCounter(c.escalations)
	s.Consecutive = readGauge(c.consecutive)

	var m dto.Metric
	if err := c.attemptDuration.Write(&m); err == nil && m.Histogram != nil {
		s.DurationCount = m.Histogram.GetSampleCount()
		s.DurationSum = m.Histogram.GetSampleSum()
	}

	c.mu.Lock()
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	s.Uptime = time.Since(c.startTime)
	c.mu.Unlock()

	return s
}

func readCounter(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}

func readGauge(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil || out.Gauge == nil {
		return 0
	}
	return out.Gauge.GetValue()
}
