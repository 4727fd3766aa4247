package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// NewLogger: stderr logger built from -log-format, -log-level and -v
// =============================================================================

func TestNewLogger_FormatFallback(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
	}{
		{"json", true},
		{"JSON", true},
		{"text", false},
		{"Text", false},
		{"", true},
		{"logfmt", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h := NewLogger(tt.format, "info", false).Handler()
			_, isJSON := h.(*slog.JSONHandler)
			_, isText := h.(*slog.TextHandler)
			if isJSON != tt.wantJSON || isText == tt.wantJSON {
				t.Errorf("NewLogger(%q) handler = %T, want json=%v", tt.format, h, tt.wantJSON)
			}
		})
	}
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		level     string
		verbose   bool
		wantDebug bool
		wantInfo  bool
	}{
		{"info", "info", false, false, true},
		{"warn hides attempt_succeeded", "warn", false, false, false},
		{"verbose beats warn", "warn", true, true, true},
		{"debug", "debug", false, true, true},
		{"unknown level is info", "chatty", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger("json", tt.level, tt.verbose)
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if !logger.Enabled(ctx, slog.LevelError) {
				t.Error("loop_escalated (error) must always be enabled")
			}
		})
	}
}

// =============================================================================
// NewLoggerWithWriter
// =============================================================================

func TestNewLoggerWithWriter_LoopEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "warn")

	logger.Debug("attempt_succeeded", "attempt", 1)
	logger.Warn("attempt_failed", "attempt", 2, "consecutive", 1, "threshold", 3)
	logger.Error("loop_escalated", "consecutive", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2 (debug filtered):\n%s", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "attempt_failed" || rec["level"] != "WARN" {
		t.Errorf("first record = %v", rec)
	}
	if rec["threshold"] != float64(3) {
		t.Errorf("threshold attr = %v, want 3", rec["threshold"])
	}
}

func TestNewLoggerWithWriter_TextUnlessJSON(t *testing.T) {
	for _, format := range []string{"text", "", "yaml"} {
		var buf bytes.Buffer
		NewLoggerWithWriter(&buf, format, "info").Info("loop_starting", "interval", "10s")

		out := buf.String()
		if !strings.Contains(out, "msg=loop_starting") || !strings.Contains(out, "interval=10s") {
			t.Errorf("format %q: want text output, got %q", format, out)
		}
	}
}

// =============================================================================
// Run tagging and discard
// =============================================================================

func TestWithRun_TagsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRun(NewLoggerWithWriter(&buf, "json", "debug"), "0d4c1c1e-run")

	logger.Info("loop_starting")
	logger.With("pid", 42).Debug("process_started")

	dec := json.NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec["run_id"] != "0d4c1c1e-run" {
			t.Errorf("record %d run_id = %v", i, rec["run_id"])
		}
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
		if logger.Enabled(context.Background(), level) {
			t.Errorf("Discard() enabled at %v", level)
		}
	}
	// Tagging a discard logger must stay silent and safe.
	WithRun(logger, "x").Error("loop_failed")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(WithRun(NewLoggerWithWriter(&buf, "text", "info"), "run-7"))
	slog.Info("from_default")

	if !strings.Contains(buf.String(), "msg=from_default") || !strings.Contains(buf.String(), "run_id=run-7") {
		t.Errorf("default logger not replaced: %q", buf.String())
	}
}
