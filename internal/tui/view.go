package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-service-loop/internal/stats"
	"github.com/randomizedcoder/go-service-loop/internal/timeseries"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStreak())

	if m.snap != nil {
		sections = append(sections, m.renderAttemptStats())
		sections = append(sections, m.renderDurationStats())
		if m.rates != nil {
			sections = append(sections, m.renderRates())
		}

		if len(m.snap.FailureKinds) > 0 {
			sections = append(sections, m.renderFailureStats())
		}
		if len(m.snap.Recent) > 0 {
			sections = append(sections, m.renderRecentStrip())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the recent attempt table.
func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderAttemptTable(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-service-loop │ %s │ Attempts: %s │ Every %s │ Elapsed: %s ",
		m.state.String(),
		formatNumber(m.Attempts()),
		m.interval.String(),
		formatDuration(m.Elapsed()),
	)
	if last := lastOutcome(m.snap); last != "" {
		header += "│ Last: " + last + " "
	}

	style := headerStyle
	if m.Escalated() {
		style = headerAlertStyle
	}
	return style.Width(m.width).Render(header)
}

// =============================================================================
// Failure Streak
// =============================================================================

func (m Model) renderStreak() string {
	consecutive := m.Consecutive()
	status := GetStreakStatus(consecutive, m.threshold)

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	bar := RenderProgressBar(m.StreakRatio(), barWidth, GetStreakStyle(status))

	var line string
	switch {
	case m.Escalated():
		line = statusError.Render(fmt.Sprintf("✗ Escalated after %d consecutive failures", m.threshold))
	case status == StreakStatusOK:
		line = statusOK.Render("✓ Healthy")
	default:
		line = GetStreakLabel(consecutive, m.threshold)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Failure Streak"),
		bar,
		line,
	)

	box := boxStyle
	if m.Escalated() {
		box = alertBoxStyle
	}
	return box.Width(m.width - 2).Render(content)
}

// =============================================================================
// Attempt Statistics
// =============================================================================

func (m Model) renderAttemptStats() string {
	s := m.snap
	rate := s.SuccessRate()

	rows := []string{
		RenderKeyValue("Command", truncate(m.command, m.width-30)),
		RenderKeyValue("Successes", formatNumber(s.Successes)),
		RenderKeyValue("Failures", formatNumber(s.Failures)),
		RenderKeyValue("Longest Streak", formatNumber(s.MaxStreak)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Success Rate:"),
			GetSuccessRateStyle(rate).Render(formatPercent(rate)),
		),
	}
	if s.Permanent > 0 {
		rows = append(rows, RenderKeyValue("Permanent", formatNumber(s.Permanent)))
	}
	if !s.LastSuccess.IsZero() {
		rows = append(rows, RenderKeyValue("Last Success", formatDuration(time.Since(s.LastSuccess))+" ago"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Attempts")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Duration Statistics
// =============================================================================

func (m Model) renderDurationStats() string {
	s := m.snap
	var content string
	if s.DurationMax == 0 {
		content = lipgloss.JoinVertical(lipgloss.Left,
			sectionHeaderStyle.Render("Attempt Duration"),
			dimStyle.Render("No completed attempts yet"),
		)
	} else {
		content = lipgloss.JoinVertical(lipgloss.Left,
			sectionHeaderStyle.Render("Attempt Duration"),
			renderDurationRow("P50", s.DurationP50),
			renderDurationRow("P95", s.DurationP95),
			renderDurationRow("P99", s.DurationP99),
			renderDurationRow("Max", s.DurationMax),
		)
	}
	return boxStyle.Width(m.width - 2).Render(content)
}

func renderDurationRow(label string, d time.Duration) string {
	return RenderKeyValue(label, formatMs(d))
}

// =============================================================================
// Rolling Rates
// =============================================================================

func (m Model) renderRates() string {
	r := m.rates
	rows := []string{
		sectionHeaderStyle.Render("Rolling Rates"),
		tableHeaderStyle.Render(fmt.Sprintf("%-8s %12s %10s", "Window", "Attempts/min", "Failed")),
		renderRateRow("1m", r.Last1m),
		renderRateRow("5m", r.Last5m),
		renderRateRow("15m", r.Last15m),
		renderRateRow("Overall", r.Overall),
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderRateRow(label string, w timeseries.Window) string {
	style := valueGoodStyle
	switch {
	case w.FailureRatio >= 0.5:
		style = valueBadStyle
	case w.FailureRatio > 0:
		style = valueWarnStyle
	}
	return fmt.Sprintf("%-8s %12s %s",
		label,
		valueStyle.Render(fmt.Sprintf("%.1f", w.PerMinute)),
		style.Render(fmt.Sprintf("%10s", formatPercent(w.FailureRatio))),
	)
}

// =============================================================================
// Failures
// =============================================================================

func (m Model) renderFailureStats() string {
	s := m.snap
	rows := []string{sectionHeaderStyle.Render("Failures by Kind")}

	for i, kc := range s.FailureKinds {
		if i >= 5 {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more kinds", len(s.FailureKinds)-5)))
			break
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(truncate(kc.Kind, 19)+":"),
			valueBadStyle.Render(formatNumber(kc.Count)),
		))
	}

	if s.LastFailure != nil {
		rows = append(rows, "",
			mutedStyle.Render("Last error: ")+truncate(s.LastFailure.Err, m.width-20))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Recent Attempts
// =============================================================================

// renderRecentStrip draws one glyph per recent attempt, newest on the right.
func (m Model) renderRecentStrip() string {
	recent := m.snap.Recent
	maxCells := m.width - 6
	if maxCells > 0 && len(recent) > maxCells {
		recent = recent[len(recent)-maxCells:]
	}

	var b strings.Builder
	for _, rec := range recent {
		b.WriteString(GetOutcomeStyle(rec.Outcome).Render(outcomeGlyph(rec.Outcome)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Recent Attempts"),
		b.String(),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// renderAttemptTable lists recent attempts, newest first.
func (m Model) renderAttemptTable() string {
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-6s %-10s %-10s %-5s %s", "#", "Outcome", "Duration", "Exit", "Error"),
	)

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	recent := m.snap.Recent
	rows := []string{header}
	for i := 0; i < len(recent); i++ {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d older attempts", len(recent)-maxRows)))
			break
		}
		rec := recent[len(recent)-1-i]

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		exit := "-"
		if rec.ExitCode >= 0 {
			exit = fmt.Sprintf("%d", rec.ExitCode)
		}

		outcome := GetOutcomeStyle(rec.Outcome).Render(fmt.Sprintf("%-10s", rec.Outcome))
		row := fmt.Sprintf("%-6d %s %-10s %-5s %s",
			rec.Number,
			outcome,
			formatMs(rec.Duration),
			exit,
			truncate(rec.Err, m.width-40),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))

	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}
	if m.runID != "" {
		right = dimStyle.Render("Run: "+truncate(m.runID, 8)+"  ") + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// lastOutcome returns the outcome of the newest recorded attempt.
func lastOutcome(s *stats.Snapshot) string {
	if s == nil || len(s.Recent) == 0 {
		return ""
	}
	return s.Recent[len(s.Recent)-1].Outcome
}
