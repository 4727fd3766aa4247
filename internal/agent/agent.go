// Package agent runs a configured command under the execution supervisor and
// wires in metrics, statistics, the dashboard and the exit summary.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-service-loop/internal/config"
	"github.com/randomizedcoder/go-service-loop/internal/logging"
	"github.com/randomizedcoder/go-service-loop/internal/metrics"
	"github.com/randomizedcoder/go-service-loop/internal/preflight"
	"github.com/randomizedcoder/go-service-loop/internal/process"
	"github.com/randomizedcoder/go-service-loop/internal/stats"
	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
	"github.com/randomizedcoder/go-service-loop/internal/timeseries"
	"github.com/randomizedcoder/go-service-loop/internal/tui"
)

var (
	// ErrPreflight is returned by Run when a startup check fails.
	ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

	// ErrDurationElapsed is the cancellation cause once -duration has passed.
	ErrDurationElapsed = errors.New("duration elapsed")

	// ErrInterrupted is the cancellation cause after SIGINT or SIGTERM.
	ErrInterrupted = errors.New("interrupted")

	errDashboardClosed = errors.New("dashboard closed")
)

// recentOutputLines is how much command output the exit summary repeats.
const recentOutputLines = 10

// Options holds what the agent needs besides the configuration.
type Options struct {
	Version string
	RunID   string       // empty = random UUID
	Logger  *slog.Logger // nil = discard
	Out     io.Writer    // banner, report and summary; nil = os.Stdout

	// Signals cancel the run; nil means SIGINT and SIGTERM.
	Signals []os.Signal
}

// Agent coordinates one supervised command loop.
type Agent struct {
	config  *config.Config
	logger  *slog.Logger
	out     io.Writer
	version string
	runID   string
	signals []os.Signal

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	stats         *stats.LoopStats
	rates         *timeseries.RateTracker
	loop          *supervisor.Loop
	workload      *CommandWorkload
	sink          *outputSink

	// report collects the escalation report while the dashboard owns the
	// terminal.
	report    bytes.Buffer
	reportMu  sync.Mutex
	escalated atomic.Bool

	startTime time.Time
}

// New creates an Agent for cfg. cfg must already be validated.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithRun(logger, runID)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	signals := opts.Signals
	if signals == nil {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sink, err := openOutput(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		config:  cfg,
		logger:  logger,
		out:     out,
		version: opts.Version,
		runID:   runID,
		signals: signals,
		stats:   stats.NewLoopStats(),
		rates:   timeseries.NewRateTracker(),
		sink:    sink,
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		RunID:       runID,
		Command:     process.CommandString(cfg.Command),
		Version:     opts.Version,
		Interval:    cfg.Interval,
		Consecutive: cfg.Consecutive,
	}, a.registry)

	if cfg.MetricsAddr != "" {
		a.metricsServer = metrics.NewServer(cfg.MetricsAddr, a.registry, a.health, logger)
	}

	a.workload = &CommandWorkload{
		Argv:         cfg.Command,
		Dir:          cfg.Dir,
		Output:       sink.output,
		Timeout:      cfg.AttemptTimeout,
		KillGrace:    cfg.KillGrace,
		StopExitCode: cfg.StopExitCode,
		Logger:       logger,
		OnResult:     a.onResult,
		AfterAttempt: sink.flush,
	}

	loopCfg := supervisor.Config{
		Interval:    cfg.Interval,
		Consecutive: cfg.Consecutive,
		Out:         a.reportWriter(),
		Logger:      logger,
		JitterPct:   cfg.Jitter,
		RunOnce:     cfg.Once,
		Callbacks: supervisor.Callbacks{
			OnStateChange: a.onStateChange,
			OnAttempt:     a.onAttempt,
			OnEscalate:    a.onEscalate,
		},
	}
	if cfg.Backoff {
		backoff := supervisor.DefaultBackoffConfig()
		backoff.Initial = cfg.BackoffInitial
		backoff.Max = cfg.BackoffMax
		backoff.Multiplier = cfg.BackoffMultiply
		loopCfg.Backoff = &backoff
	}
	a.loop = supervisor.New(loopCfg)

	return a, nil
}

// reportWriter is where the loop writes its escalation report. With the
// dashboard on, the report is held back until the terminal is restored.
func (a *Agent) reportWriter() io.Writer {
	if a.config.TUIEnabled {
		return &lockedWriter{mu: &a.reportMu, w: &a.report}
	}
	return a.out
}

// Run executes the loop. It blocks until the loop ends, the duration elapses
// or a signal arrives.
//
// It returns nil for a clean end (stop exit code, single successful run,
// signal or elapsed duration), ErrPreflight when startup checks fail and the
// loop's error after an escalation or a permanent failure.
func (a *Agent) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := a.sink.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	a.startTime = time.Now()

	if !a.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Command:    a.config.Command,
			Dir:        a.config.Dir,
			OutputFile: a.outputFile(),
		})
		preflight.WriteResults(a.out, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer a.shutdownMetrics()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, a.signals...)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			a.logger.Info("received_signal", "signal", sig.String())
			cancel(ErrInterrupted)
		case <-ctx.Done():
		}
	}()

	if a.config.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, a.config.Duration, ErrDurationElapsed)
		defer cancelTimeout()
	}

	a.logger.Info("loop_starting",
		"version", a.version,
		"command", process.CommandString(a.config.Command),
		"interval", a.loop.Interval().String(),
		"consecutive", a.loop.Threshold(),
		"output", a.config.Output,
		"metrics_addr", a.metricsAddr(),
	)

	var loopErr, cause error
	if a.config.TUIEnabled {
		loopErr, cause = a.runWithDashboard(ctx, cancel)
	} else {
		a.printBanner()
		loopErr = a.loop.Run(ctx, a.workload.Run)
		cause = context.Cause(ctx)
	}

	reason := a.endReason(loopErr, cause)
	a.logger.Info("loop_finished", "reason", reason, "attempts", a.stats.Attempts())

	if a.config.Check && loopErr == nil {
		loopErr = a.selfCheck()
	}

	a.printExitSummary(reason)

	switch {
	case loopErr == nil:
		return nil
	case errors.Is(cause, ErrInterrupted), errors.Is(cause, ErrDurationElapsed), errors.Is(cause, errDashboardClosed):
		if isContextErr(loopErr) {
			return nil
		}
	}
	return loopErr
}

// runWithDashboard runs the loop while the TUI owns the terminal. Quitting the
// dashboard cancels the loop. It returns the loop's error and the
// cancellation cause observed when the loop ended.
func (a *Agent) runWithDashboard(ctx context.Context, cancel context.CancelCauseFunc) (error, error) {
	model := tui.New(tui.Config{
		Command:     process.CommandString(a.config.Command),
		RunID:       a.runID,
		Interval:    a.loop.Interval(),
		Threshold:   a.loop.Threshold(),
		MetricsAddr: a.metricsAddr(),
		Source:      a.stats,
		State:       a.loop,
		Rates:       a.rates,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.logger.Warn("tui_error", "error", err)
		}
		cancel(errDashboardClosed)
	}()

	err := a.loop.Run(ctx, a.workload.Run)
	cause := context.Cause(ctx)

	tui.SendQuit(program)
	<-uiDone

	a.flushReport()
	return err, cause
}

// flushReport writes the held-back escalation report to the agent's output.
func (a *Agent) flushReport() {
	a.reportMu.Lock()
	defer a.reportMu.Unlock()

	if a.report.Len() == 0 {
		return
	}
	if _, err := a.out.Write(a.report.Bytes()); err != nil {
		a.logger.Error("report_write_failed", "error", err)
	}
	a.report.Reset()
}

// endReason describes why the loop ended, for logs and the exit summary.
func (a *Agent) endReason(loopErr, cause error) string {
	switch {
	case a.escalated.Load():
		return fmt.Sprintf("escalated after %d consecutive failures", a.loop.Threshold())
	case errors.Is(cause, ErrInterrupted):
		return "interrupted by signal"
	case errors.Is(cause, ErrDurationElapsed):
		return "duration elapsed"
	case errors.Is(cause, errDashboardClosed):
		return "dashboard closed"
	case isContextErr(loopErr):
		return "cancelled"
	case loopErr != nil && a.loop.State() == supervisor.StateEscalated:
		return "permanent failure: " + supervisor.ErrorKind(loopErr)
	case loopErr != nil:
		return "failed: " + supervisor.ErrorKind(loopErr)
	case a.stats.Snapshot().Stops > 0:
		return "stop requested"
	case a.config.Once:
		return "single run completed"
	default:
		return "stopped"
	}
}

// isContextErr reports whether the loop ended on its context. The loop
// returns ctx.Err() itself, so wrapped errors such as *TimeoutError do not
// count.
func isContextErr(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// =============================================================================
// Loop callbacks
// =============================================================================

func (a *Agent) onStateChange(_, newState supervisor.State) {
	a.metrics.SetState(newState.String())
}

func (a *Agent) onAttempt(at supervisor.Attempt) {
	outcome := at.Outcome.String()
	kind := ""
	errText := ""
	if at.Err != nil && at.Outcome != supervisor.OutcomeStop {
		kind = supervisor.ErrorKind(at.Err)
		errText = at.Err.Error()
	}

	exitCode := -1
	var exitErr *process.ExitError
	var timeoutErr *TimeoutError
	switch {
	case at.Err == nil:
		exitCode = 0
	case errors.As(at.Err, &exitErr):
		exitCode = exitErr.Code
	case errors.As(at.Err, &timeoutErr):
		exitCode = timeoutErr.ExitCode
	}

	a.stats.Record(stats.AttemptRecord{
		Number:      at.Number,
		Outcome:     outcome,
		Kind:        kind,
		Err:         errText,
		Started:     at.Started,
		Duration:    at.Duration,
		ExitCode:    exitCode,
		Consecutive: at.Consecutive,
	})
	a.metrics.RecordAttempt(outcome, kind, at.Duration, at.Consecutive)

	if at.Outcome != supervisor.OutcomeCancelled {
		a.rates.Add(at.Outcome == supervisor.OutcomeFailure || at.Outcome == supervisor.OutcomePermanent)
		a.rates.RecordSample()
	}

	if at.Outcome == supervisor.OutcomeSuccess {
		a.logger.Debug("attempt_succeeded", "attempt", at.Number, "duration", at.Duration.String())
	}
}

func (a *Agent) onEscalate(records []supervisor.FailureRecord) {
	a.escalated.Store(true)
	a.metrics.RecordEscalation()
}

func (a *Agent) onResult(res *process.Result) {
	a.metrics.RecordExit(res.ExitCode)
}

// health backs /health: unhealthy once the loop has given up.
func (a *Agent) health() error {
	if a.loop.State() == supervisor.StateEscalated {
		if err := a.loop.Stats().LastError; err != nil {
			return fmt.Errorf("loop escalated: %w", err)
		}
		return errors.New("loop escalated")
	}
	return nil
}

// =============================================================================
// Check mode
// =============================================================================

// selfCheck scrapes the agent's own metrics endpoint and verifies it agrees
// with the recorded statistics.
func (a *Agent) selfCheck() error {
	if a.metricsServer == nil {
		fmt.Fprintln(a.out, "Check: metrics disabled, skipping endpoint check")
		return nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	families, err := metrics.Scrape(client, a.metricsServer.URL())
	if err != nil {
		return fmt.Errorf("check: scrape %s: %w", a.metricsServer.URL(), err)
	}

	mf := families["service_loop_attempts_total"]
	var scraped float64
	for _, outcome := range []string{
		metrics.OutcomeSuccess, metrics.OutcomeFailure, metrics.OutcomeStop,
		metrics.OutcomeCancelled, metrics.OutcomePermanent,
	} {
		if v, ok := metrics.Value(mf, "outcome", outcome); ok {
			scraped += v
		}
	}

	if want := a.stats.Attempts(); int64(scraped) != want {
		return fmt.Errorf("check: metrics report %d attempts, loop recorded %d", int64(scraped), want)
	}

	fmt.Fprintf(a.out, "Check: OK (%d attempt(s), metrics at %s)\n", int64(scraped), a.metricsServer.URL())
	return nil
}

// =============================================================================
// Output
// =============================================================================

// printBanner prints the startup banner.
func (a *Agent) printBanner() {
	w := a.out
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                         go-service-loop                           ║")
	fmt.Fprintln(w, "║        Supervised command loop with failure escalation            ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Command:     %s\n", process.CommandString(a.config.Command))
	if a.config.Once {
		fmt.Fprintln(w, "  Schedule:    single attempt")
	} else {
		fmt.Fprintf(w, "  Schedule:    every %s, escalate after %d consecutive failures\n",
			a.loop.Interval(), a.loop.Threshold())
	}
	if a.config.Backoff {
		fmt.Fprintf(w, "  Backoff:     %s → %s (x%.1f)\n",
			a.config.BackoffInitial, a.config.BackoffMax, a.config.BackoffMultiply)
	}
	if a.config.AttemptTimeout > 0 {
		fmt.Fprintf(w, "  Timeout:     %s per attempt\n", a.config.AttemptTimeout)
	}
	if addr := a.metricsAddr(); addr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", addr)
	}
	fmt.Fprintf(w, "  Run ID:      %s\n", a.runID)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// printExitSummary prints a summary of the run.
func (a *Agent) printExitSummary(reason string) {
	fmt.Fprint(a.out, stats.FormatExitSummary(a.stats.Snapshot(), stats.SummaryConfig{
		RunID:        a.runID,
		Command:      process.CommandString(a.config.Command),
		Interval:     a.loop.Interval(),
		Threshold:    a.loop.Threshold(),
		Duration:     time.Since(a.startTime),
		Reason:       reason,
		MetricsAddr:  a.metricsAddr(),
		ExitCodes:    a.metrics.Snapshot().ExitCodes,
		RecentOutput: a.sink.recentLines(recentOutputLines),
		OutputErrors: a.sink.errorCounts(),
	}))
}

func (a *Agent) shutdownMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// metricsAddr returns the bound metrics address once the server runs.
func (a *Agent) metricsAddr() string {
	if a.metricsServer == nil {
		return ""
	}
	return a.metricsServer.Addr()
}

func (a *Agent) outputFile() string {
	if a.config.Output == config.OutputFile {
		return a.config.OutputFile
	}
	return ""
}

// =============================================================================
// Accessors
// =============================================================================

// RunID returns the identifier attached to logs, metrics and the summary.
func (a *Agent) RunID() string { return a.runID }

// Stats returns the loop statistics.
func (a *Agent) Stats() *stats.LoopStats { return a.stats }

// Rates returns the rolling attempt rate tracker.
func (a *Agent) Rates() *timeseries.RateTracker { return a.rates }

// Metrics returns the metrics collector.
func (a *Agent) Metrics() *metrics.Collector { return a.metrics }

// Registry returns the Prometheus registry the agent exposes.
func (a *Agent) Registry() *prometheus.Registry { return a.registry }

// lockedWriter serializes writes to w.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
