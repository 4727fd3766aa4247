package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-service-loop/internal/stats"
	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
	"github.com/randomizedcoder/go-service-loop/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries an updated snapshot.
type StatsMsg struct {
	Snapshot *stats.Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	command     string
	runID       string
	interval    time.Duration
	threshold   int
	metricsAddr string

	// Current state
	snap         *stats.Snapshot
	rates        *timeseries.RateStats
	state        supervisor.State
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	source      SnapshotSource
	stateSource StateSource
	rateSource  RateSource

	quitting bool
}

// SnapshotSource provides loop statistics.
type SnapshotSource interface {
	Snapshot() *stats.Snapshot
}

// StateSource reports the supervisor state. *supervisor.Loop satisfies it.
type StateSource interface {
	State() supervisor.State
}

// RateSource provides rolling attempt rates. *timeseries.RateTracker
// satisfies it.
type RateSource interface {
	Stats() timeseries.RateStats
}

// Config holds TUI configuration.
type Config struct {
	Command     string
	RunID       string
	Interval    time.Duration
	Threshold   int
	MetricsAddr string
	Source      SnapshotSource
	State       StateSource
	Rates       RateSource // optional
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		command:     cfg.Command,
		runID:       cfg.RunID,
		interval:    cfg.Interval,
		threshold:   cfg.Threshold,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		stateSource: cfg.State,
		rateSource:  cfg.Rates,
		state:       supervisor.StateCreated,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case StatsMsg:
		m.snap = msg.Snapshot
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest snapshot and state from the configured sources.
func (m *Model) refresh() {
	if m.source != nil {
		m.snap = m.source.Snapshot()
	}
	if m.stateSource != nil {
		m.state = m.stateSource.State()
	}
	if m.rateSource != nil {
		r := m.rateSource.Stats()
		m.rates = &r
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.snap != nil && len(m.snap.Recent) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// State returns the last observed supervisor state.
func (m Model) State() supervisor.State {
	return m.state
}

// Attempts returns the number of attempts so far.
func (m Model) Attempts() int64 {
	if m.snap == nil {
		return 0
	}
	return m.snap.Attempts
}

// Consecutive returns the current failure streak.
func (m Model) Consecutive() int64 {
	if m.snap == nil {
		return 0
	}
	return m.snap.Consecutive
}

// Threshold returns the consecutive failure threshold.
func (m Model) Threshold() int {
	return m.threshold
}

// StreakRatio returns how close the streak is to the threshold (0.0 to 1.0).
func (m Model) StreakRatio() float64 {
	if m.threshold <= 0 {
		return 0
	}
	r := float64(m.Consecutive()) / float64(m.threshold)
	if r > 1 {
		r = 1
	}
	return r
}

// Rates returns the last observed rolling rates, nil without a RateSource.
func (m Model) Rates() *timeseries.RateStats {
	return m.rates
}

// Escalated reports whether the loop gave up.
func (m Model) Escalated() bool {
	return m.state == supervisor.StateEscalated
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a snapshot to the TUI.
func SendStats(p *tea.Program, snap *stats.Snapshot) {
	if p != nil {
		p.Send(StatsMsg{Snapshot: snap})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
