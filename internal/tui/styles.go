// Package tui provides a live terminal dashboard for a supervised loop.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It shows the failure streak against the escalation threshold, attempt
// outcomes, attempt duration percentiles and the most frequent error kinds.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-service-loop/internal/stats"
	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	// Escalated loops get a red frame.
	alertBoxStyle = boxStyle.
			BorderForeground(colorError)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	headerAlertStyle = headerStyle.
				Background(colorError)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Table Styles
// =============================================================================

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)
)

// =============================================================================
// Streak Indicator
// =============================================================================

// StreakStatus represents how close the failure streak is to escalation.
type StreakStatus int

const (
	StreakStatusOK StreakStatus = iota
	StreakStatusFailing
	StreakStatusCritical
)

// GetStreakStatus classifies a streak against the threshold. The last
// failure before escalation is critical.
func GetStreakStatus(consecutive int64, threshold int) StreakStatus {
	switch {
	case consecutive <= 0:
		return StreakStatusOK
	case threshold > 0 && consecutive >= int64(threshold-1):
		return StreakStatusCritical
	default:
		return StreakStatusFailing
	}
}

// GetStreakStyle returns the style for a streak status.
func GetStreakStyle(status StreakStatus) lipgloss.Style {
	switch status {
	case StreakStatusCritical:
		return statusError
	case StreakStatusFailing:
		return statusWarning
	default:
		return statusOK
	}
}

// GetStreakLabel returns a styled "streak n/threshold" label.
func GetStreakLabel(consecutive int64, threshold int) string {
	style := GetStreakStyle(GetStreakStatus(consecutive, threshold))
	return style.Render(fmt.Sprintf("● Streak %d/%d", consecutive, threshold))
}

// =============================================================================
// State Indicator
// =============================================================================

// GetStateStyle returns a style for the supervisor state.
func GetStateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateRunning:
		return statusInfo
	case supervisor.StateSleeping:
		return statusOK
	case supervisor.StateEscalated:
		return statusError
	case supervisor.StateStopped:
		return statusWarning
	default:
		return mutedStyle
	}
}

// =============================================================================
// Outcome Indicator
// =============================================================================

// GetOutcomeStyle returns the style for an attempt outcome.
func GetOutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case stats.OutcomeSuccess:
		return statusOK
	case stats.OutcomeFailure:
		return statusWarning
	case stats.OutcomePermanent:
		return statusError
	case stats.OutcomeStop:
		return statusInfo
	default:
		return dimStyle
	}
}

// outcomeGlyph is the single cell drawn for an attempt in the recent strip.
func outcomeGlyph(outcome string) string {
	switch outcome {
	case stats.OutcomeSuccess:
		return "●"
	case stats.OutcomeFailure:
		return "✗"
	case stats.OutcomePermanent:
		return "!"
	case stats.OutcomeStop:
		return "■"
	default:
		return "·"
	}
}

// =============================================================================
// Success Rate Indicator
// =============================================================================

// GetSuccessRateStyle returns a style based on the success ratio.
func GetSuccessRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= 0.99:
		return valueGoodStyle
	case rate >= 0.9:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a bar filled to progress using the given style
// for the filled part.
func RenderProgressBar(progress float64, width int, fill lipgloss.Style) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := fill.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
