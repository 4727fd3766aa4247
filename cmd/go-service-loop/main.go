// Package main provides the go-service-loop CLI entry point.
//
// go-service-loop runs an external command on a fixed cadence, tolerates
// isolated failures and stops with a diagnostic report once the command has
// failed a configured number of times in a row.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-service-loop/internal/agent"
	"github.com/randomizedcoder/go-service-loop/internal/config"
	"github.com/randomizedcoder/go-service-loop/internal/logging"
	"github.com/randomizedcoder/go-service-loop/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-service-loop
var version = "dev"

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitBadConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Handle version flag early (before flag parsing)
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(stdout, "go-service-loop %s\n", version)
			return exitOK
		}
	}

	cfg, err := config.ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return exitBadConfig
	}

	// Apply --check mode modifications before validation so the forced
	// values are validated too.
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitBadConfig
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if cfg.Check {
		logger.Info("check_mode_enabled", "command", process.CommandString(cfg.Command))
	}

	if cfg.PrintCmd {
		return printCommand(stdout, cfg)
	}

	a, err := agent.New(cfg, agent.Options{
		Version: version,
		Logger:  logger,
		Out:     stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitBadConfig
	}

	if err := a.Run(context.Background()); err != nil {
		logger.Error("loop_failed", "error", err, "run_id", a.RunID())
		return exitFailed
	}
	return exitOK
}

// printCommand prints the command each attempt runs and, with -v, the
// effective configuration.
func printCommand(w io.Writer, cfg *config.Config) int {
	fmt.Fprintln(w, "# Command run on every attempt:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, process.CommandString(cfg.Command))

	if cfg.Verbose {
		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(w, "# unable to render configuration: %v\n", err)
			return exitFailed
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# Effective configuration:")
		fmt.Fprintln(w)
		if _, err := w.Write(data); err != nil {
			return exitFailed
		}
	}
	return exitOK
}
