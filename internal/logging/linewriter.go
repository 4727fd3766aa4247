package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit summary.
	MaxBufferedLines = 100

	truncatedSuffix = "...(truncated)"
)

// LineWriter is an io.Writer for child process output. It splits what it is
// given into lines, logs each line and keeps the most recent ones for the
// exit summary. Safe for concurrent use.
type LineWriter struct {
	logger  *slog.Logger
	stream  string
	verbose bool

	mu       sync.Mutex
	partial  []byte
	skipping bool // dropping the tail of an over-long line

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	count  int
}

// NewLineWriter creates a LineWriter that tags every line with stream
// ("stdout" or "stderr").
func NewLineWriter(logger *slog.Logger, stream string, verbose bool) *LineWriter {
	return &LineWriter{
		logger:  logger,
		stream:  stream,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write never fails; output that cannot be logged is still consumed so the
// child is never blocked on a full pipe.
func (w *LineWriter) Write(p []byte) (int, error) {
	n := len(p)

	w.mu.Lock()
	var lines []string
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.appendPartial(p, &lines)
			break
		}
		w.appendPartial(p[:i], &lines)
		if !w.skipping {
			lines = append(lines, strings.TrimSuffix(string(w.partial), "\r"))
		}
		w.partial = w.partial[:0]
		w.skipping = false
		p = p[i+1:]
	}
	for _, line := range lines {
		w.store(line)
	}
	w.mu.Unlock()

	for _, line := range lines {
		w.logLine(line)
	}
	return n, nil
}

// appendPartial adds b to the pending line, cutting it at MaxLineLength.
func (w *LineWriter) appendPartial(b []byte, lines *[]string) {
	if w.skipping {
		return
	}
	room := MaxLineLength - len(w.partial)
	if len(b) <= room {
		w.partial = append(w.partial, b...)
		return
	}
	w.partial = append(w.partial, b[:room]...)
	*lines = append(*lines, string(w.partial)+truncatedSuffix)
	w.partial = w.partial[:0]
	w.skipping = true
}

// Flush emits a trailing line that had no newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	if len(w.partial) == 0 {
		w.skipping = false
		w.mu.Unlock()
		return
	}
	line := string(w.partial)
	w.partial = w.partial[:0]
	w.skipping = false
	w.store(line)
	w.mu.Unlock()

	w.logLine(line)
}

// store must be called with mu held.
func (w *LineWriter) store(line string) {
	w.buffer[w.bufIdx] = line
	w.bufIdx = (w.bufIdx + 1) % MaxBufferedLines
	if w.count < MaxBufferedLines {
		w.count++
	}
}

// logLine logs the line at appropriate level based on content.
func (w *LineWriter) logLine(line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !w.verbose && level == slog.LevelDebug {
		return
	}

	w.logger.Log(context.Background(), level, "process_output",
		"stream", w.stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "panic") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "refused") ||
		strings.Contains(lower, "denied") {
		return slog.LevelError
	}

	if strings.Contains(lower, "warn") ||
		strings.Contains(lower, "retry") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (w *LineWriter) RecentLines(n int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n > w.count {
		n = w.count
	}
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (w.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, w.buffer[idx])
	}
	return lines
}

// ErrorPatterns are matched case-insensitively by CountErrors.
var ErrorPatterns = []string{
	"error",
	"fatal",
	"panic",
	"connection refused",
	"permission denied",
	"not found",
	"timeout",
}

// CountErrors counts occurrences of error patterns among the buffered lines.
func (w *LineWriter) CountErrors() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	counts := make(map[string]int)
	for i := 0; i < w.count; i++ {
		lower := strings.ToLower(w.buffer[i])
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
