package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// RunID identifies the run in logs and metrics
	RunID string

	// Command is the rendered command line
	Command string

	// Interval and Threshold are the loop settings
	Interval  time.Duration
	Threshold int

	// Duration is the total run duration
	Duration time.Duration

	// Reason says why the loop ended (e.g. "stop requested", "escalated")
	Reason string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	// RecentOutput holds the last lines the command printed, if kept
	RecentOutput []string

	// OutputErrors counts error patterns seen in the kept output
	OutputErrors map[string]int
}

// FormatExitSummary formats loop stats for display at program exit.
func FormatExitSummary(snap *Snapshot, cfg SummaryConfig) string {
	if snap == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder
	writeHeader(&b, cfg)

	fmt.Fprintf(&b, "Attempts:               %s\n", FormatNumber(snap.Attempts))
	fmt.Fprintf(&b, "  Succeeded:            %d\n", snap.Successes)
	fmt.Fprintf(&b, "  Failed:               %d\n", snap.Failures+snap.Permanent)
	if snap.Stops > 0 {
		fmt.Fprintf(&b, "  Stop signals:         %d\n", snap.Stops)
	}
	if snap.Cancelled > 0 {
		fmt.Fprintf(&b, "  Cancelled:            %d\n", snap.Cancelled)
	}
	fmt.Fprintf(&b, "Success Rate:           %.1f%%\n", snap.SuccessRate()*100)
	fmt.Fprintf(&b, "Longest Failure Streak: %d\n\n", snap.MaxStreak)

	// Attempt durations
	if snap.DurationMax > 0 {
		b.WriteString(lightRule)
		b.WriteString("                              Attempt Duration\n")
		b.WriteString(lightRule + "\n")

		fmt.Fprintf(&b, "  Min:                  %s\n", FormatMs(snap.DurationMin))
		fmt.Fprintf(&b, "  Mean:                 %s\n", FormatMs(snap.DurationMean))
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(snap.DurationP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(snap.DurationP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(snap.DurationP99))
		fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(snap.DurationMax))
	}

	// Failure breakdown
	if len(snap.FailureKinds) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                                  Failures\n")
		b.WriteString(lightRule + "\n")

		for _, kc := range snap.FailureKinds {
			fmt.Fprintf(&b, "  %-30s %d\n", kc.Kind, kc.Count)
		}
		if snap.LastFailure != nil {
			fmt.Fprintf(&b, "\n  Last error (attempt %d): %s\n", snap.LastFailure.Number, snap.LastFailure.Err)
		}
		b.WriteString("\n")
	}

	// Exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                                Exit Codes\n")
		b.WriteString(lightRule + "\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			count := cfg.ExitCodes[code]
			label := exitCodeLabel(code)
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, label, count)
		}
		b.WriteString("\n")
	}

	if len(cfg.RecentOutput) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                              Recent Output\n")
		b.WriteString(lightRule + "\n")
		for _, line := range cfg.RecentOutput {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		if len(cfg.OutputErrors) > 0 {
			patterns := make([]string, 0, len(cfg.OutputErrors))
			for p := range cfg.OutputErrors {
				patterns = append(patterns, p)
			}
			sort.Strings(patterns)

			b.WriteString("\n  Error patterns:\n")
			for _, p := range patterns {
				fmt.Fprintf(&b, "    %-26s %d\n", p, cfg.OutputErrors[p])
			}
		}
		b.WriteString("\n")
	}

	writeFooter(&b, cfg)
	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder
	writeHeader(&b, cfg)
	b.WriteString("(No attempts were recorded)\n\n")
	writeFooter(&b, cfg)
	return b.String()
}

func writeHeader(b *strings.Builder, cfg SummaryConfig) {
	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                          go-service-loop Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	if cfg.RunID != "" {
		fmt.Fprintf(b, "Run ID:                 %s\n", cfg.RunID)
	}
	if cfg.Command != "" {
		fmt.Fprintf(b, "Command:                %s\n", cfg.Command)
	}
	fmt.Fprintf(b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(b, "Interval:               %s\n", cfg.Interval)
	if cfg.Threshold > 0 {
		fmt.Fprintf(b, "Failure Threshold:      %d consecutive\n", cfg.Threshold)
	}
	if cfg.Reason != "" {
		fmt.Fprintf(b, "Ended:                  %s\n", cfg.Reason)
	}
	b.WriteString("\n")
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
