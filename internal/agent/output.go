package agent

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-service-loop/internal/config"
	"github.com/randomizedcoder/go-service-loop/internal/logging"
	"github.com/randomizedcoder/go-service-loop/internal/process"
)

// outputSink owns whatever the configured output mode needs across attempts.
type outputSink struct {
	output process.Output
	stdout *logging.LineWriter // log mode only
	stderr *logging.LineWriter
	file   *os.File // file mode only
}

// openOutput prepares the routing for cfg.Output. The caller must close the
// returned sink.
func openOutput(cfg *config.Config, logger *slog.Logger) (*outputSink, error) {
	switch cfg.Output {
	case config.OutputDiscard:
		return &outputSink{output: process.StreamOutput(false)}, nil

	case config.OutputInherit, "":
		return &outputSink{output: process.StreamOutput(true)}, nil

	case config.OutputLog:
		s := &outputSink{
			stdout: logging.NewLineWriter(logger, "stdout", cfg.Verbose),
			stderr: logging.NewLineWriter(logger, "stderr", cfg.Verbose),
		}
		s.output = process.Redirect(s.stdout, s.stderr)
		return s, nil

	case config.OutputFile:
		f, err := os.OpenFile(cfg.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output file: %w", err)
		}
		return &outputSink{output: process.Redirect(f, f), file: f}, nil

	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.Output)
	}
}

// flush emits partial lines left by the last attempt.
func (s *outputSink) flush() {
	if s.stdout != nil {
		s.stdout.Flush()
	}
	if s.stderr != nil {
		s.stderr.Flush()
	}
}

// recentLines returns the tail of the command's output for the exit summary,
// preferring stderr. Only log mode keeps lines.
func (s *outputSink) recentLines(n int) []string {
	if s.stderr == nil {
		return nil
	}
	if lines := s.stderr.RecentLines(n); len(lines) > 0 {
		return lines
	}
	return s.stdout.RecentLines(n)
}

// errorCounts merges the error pattern counts of both streams' kept lines.
func (s *outputSink) errorCounts() map[string]int {
	counts := make(map[string]int)
	for _, w := range []*logging.LineWriter{s.stdout, s.stderr} {
		if w == nil {
			continue
		}
		for pattern, n := range w.CountErrors() {
			counts[pattern] += n
		}
	}
	return counts
}

func (s *outputSink) close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
