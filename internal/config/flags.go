package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const usageHeader = `go-service-loop - run a command on a fixed cadence and stop on sustained failure

Usage:
  go-service-loop [flags] -- <command> [args...]

`

const usageFooter = `
Flag Convention:
  Single-dash flags (-interval, -output) are normal options.
  Double-dash flags (--check, --print-cmd) are diagnostic modes.

Exit Status:
  0  stopped cleanly (signal, -duration, -stop-exit-code or -once success)
  1  escalated after -consecutive failures, or a permanent failure
  2  invalid configuration

Examples:
  # Poll a health endpoint every 30s, give up after 5 failures in a row
  go-service-loop -interval 30s -consecutive 5 -- curl -fsS http://localhost:8080/health

  # Sync job with backoff, output kept in the log
  go-service-loop -backoff -output log -- ./sync.sh

  # Load everything from a file
  go-service-loop -config loop.yaml

`

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. Values from -config are applied first so that explicit
// flags override them. Everything after the flags is the command.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFlag(args); path != "" {
		if err := loadInto(cfg, path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("go-service-loop", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprint(out, usageHeader)

		fmt.Fprintf(out, "Loop:\n")
		printFlagCategory(fs, []string{"interval", "consecutive", "once", "duration"})

		fmt.Fprintf(out, "\nRetry Policy:\n")
		printFlagCategory(fs, []string{"backoff", "backoff-initial", "backoff-max", "backoff-multiply", "jitter"})

		fmt.Fprintf(out, "\nCommand:\n")
		printFlagCategory(fs, []string{"dir", "attempt-timeout", "kill-grace", "stop-exit-code", "output", "output-file"})

		fmt.Fprintf(out, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, []string{"config", "print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "v", "log-format", "log-level", "tui"})

		fmt.Fprint(out, usageFooter)
	}

	// Loop
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Delay between attempts (0 = back to back)")
	fs.IntVar(&cfg.Consecutive, "consecutive", cfg.Consecutive, "Consecutive failures that stop the loop")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Run a single attempt and exit")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration (0 = forever)")

	// Retry policy
	fs.BoolVar(&cfg.Backoff, "backoff", cfg.Backoff, "Grow the delay exponentially after failures")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First backoff delay")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Backoff delay cap")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Backoff growth factor")
	fs.Float64Var(&cfg.Jitter, "jitter", cfg.Jitter, "Spread every delay by ±jitter/2 (0.0-1.0)")

	// Command
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Working directory for the command")
	fs.DurationVar(&cfg.AttemptTimeout, "attempt-timeout", cfg.AttemptTimeout, "Cancel an attempt after this long (0 = never)")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "Time between SIGTERM and SIGKILL on cancellation")
	fs.IntVar(&cfg.StopExitCode, "stop-exit-code", cfg.StopExitCode, "Exit code that stops the loop cleanly (-1 = none)")
	fs.StringVar(&cfg.Output, "output", cfg.Output, `Command output: "discard", "inherit", "log" or "file"`)
	fs.StringVar(&cfg.OutputFile, "output-file", cfg.OutputFile, "File that receives command output with -output file")

	// Safety & Diagnostics
	var configFile string
	fs.StringVar(&configFile, "config", "", "YAML config file (flags override it)")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the command and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, run one verbose attempt and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" = disabled)`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional arguments: the command, overriding any from the file
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = append([]string(nil), rest...)
	}

	return cfg, nil
}

// findConfigFlag returns the value of -config/--config without parsing the
// rest, so the file can supply defaults for the real parse.
func findConfigFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	out := fs.Output()
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(out, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(out)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
