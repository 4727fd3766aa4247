package tui

import (
	"strings"
	"testing"

	"github.com/randomizedcoder/go-service-loop/internal/stats"
	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
)

// =============================================================================
// Tests: GetStreakStatus
// =============================================================================

func TestGetStreakStatus(t *testing.T) {
	tests := []struct {
		name        string
		consecutive int64
		threshold   int
		want        StreakStatus
	}{
		{"no failures", 0, 3, StreakStatusOK},
		{"first failure", 1, 3, StreakStatusFailing},
		{"one before escalation", 2, 3, StreakStatusCritical},
		{"at threshold", 3, 3, StreakStatusCritical},
		{"threshold of one", 1, 1, StreakStatusCritical},
		{"long threshold", 4, 10, StreakStatusFailing},
		{"no threshold", 4, 0, StreakStatusFailing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetStreakStatus(tt.consecutive, tt.threshold); got != tt.want {
				t.Errorf("GetStreakStatus(%d, %d) = %v, want %v", tt.consecutive, tt.threshold, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: GetStreakLabel
// =============================================================================

func TestGetStreakLabel(t *testing.T) {
	got := GetStreakLabel(2, 5)
	if !strings.Contains(got, "Streak 2/5") {
		t.Errorf("GetStreakLabel(2, 5) = %q, want to contain %q", got, "Streak 2/5")
	}
}

// =============================================================================
// Tests: Outcome rendering
// =============================================================================

func TestOutcomeGlyph(t *testing.T) {
	tests := []struct {
		outcome string
		want    string
	}{
		{stats.OutcomeSuccess, "●"},
		{stats.OutcomeFailure, "✗"},
		{stats.OutcomePermanent, "!"},
		{stats.OutcomeStop, "■"},
		{stats.OutcomeCancelled, "·"},
		{"unknown", "·"},
	}

	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			if got := outcomeGlyph(tt.outcome); got != tt.want {
				t.Errorf("outcomeGlyph(%q) = %q, want %q", tt.outcome, got, tt.want)
			}
			// Styles must render the glyph unchanged apart from color codes.
			if got := GetOutcomeStyle(tt.outcome).Render(tt.want); !strings.Contains(got, tt.want) {
				t.Errorf("GetOutcomeStyle(%q).Render lost the glyph: %q", tt.outcome, got)
			}
		})
	}
}

func TestGetStateStyle(t *testing.T) {
	for _, s := range []supervisor.State{
		supervisor.StateCreated,
		supervisor.StateRunning,
		supervisor.StateSleeping,
		supervisor.StateStopped,
		supervisor.StateEscalated,
	} {
		if got := GetStateStyle(s).Render(s.String()); !strings.Contains(got, s.String()) {
			t.Errorf("GetStateStyle(%v).Render = %q", s, got)
		}
	}
}

// =============================================================================
// Tests: GetSuccessRateStyle
// =============================================================================

func TestGetSuccessRateStyle(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "good"},
		{0.995, "good"},
		{0.95, "warn"},
		{0.5, "bad"},
		{0, "bad"},
	}

	styles := map[string]string{
		"good": valueGoodStyle.Render("x"),
		"warn": valueWarnStyle.Render("x"),
		"bad":  valueBadStyle.Render("x"),
	}

	for _, tt := range tests {
		got := GetSuccessRateStyle(tt.rate).Render("x")
		if got != styles[tt.want] {
			t.Errorf("GetSuccessRateStyle(%v) rendered %q, want %s style %q", tt.rate, got, tt.want, styles[tt.want])
		}
	}
}

// =============================================================================
// Tests: Render helpers
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	got := RenderKeyValue("Failures", "7")
	if !strings.Contains(got, "Failures:") || !strings.Contains(got, "7") {
		t.Errorf("RenderKeyValue = %q", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name       string
		progress   float64
		width      int
		wantFilled int
		wantEmpty  int
		wantPct    string
	}{
		{"empty", 0, 10, 0, 10, "0%"},
		{"half", 0.5, 20, 10, 10, "50%"},
		{"full", 1, 10, 10, 0, "100%"},
		{"over", 1.5, 10, 10, 0, "150%"},
		{"negative", -0.5, 10, 0, 10, "-50%"},
		{"min width", 0.5, 4, 5, 5, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderProgressBar(tt.progress, tt.width, statusOK)
			if n := strings.Count(got, "█"); n != tt.wantFilled {
				t.Errorf("filled = %d, want %d", n, tt.wantFilled)
			}
			if n := strings.Count(got, "░"); n != tt.wantEmpty {
				t.Errorf("empty = %d, want %d", n, tt.wantEmpty)
			}
			if !strings.Contains(got, tt.wantPct) {
				t.Errorf("RenderProgressBar = %q, want to contain %q", got, tt.wantPct)
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('x', 3); got != "xxx" {
		t.Errorf("repeatChar('x', 3) = %q", got)
	}
	if got := repeatChar('x', 0); got != "" {
		t.Errorf("repeatChar('x', 0) = %q", got)
	}
	if got := repeatChar('x', -1); got != "" {
		t.Errorf("repeatChar('x', -1) = %q", got)
	}
}
