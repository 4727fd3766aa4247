package config

import (
	"errors"
	"fmt"
	"net"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined together.
func Validate(cfg *Config) error {
	var errs []error

	// A command is always required
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		errs = append(errs, ValidationError{
			Field:   "command",
			Message: "a command is required after --",
		})
	}

	if cfg.Interval < 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: "must not be negative",
		})
	}

	if cfg.Consecutive < 1 {
		errs = append(errs, ValidationError{
			Field:   "consecutive",
			Message: "must be at least 1",
		})
	}

	if cfg.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "duration",
			Message: "must not be negative",
		})
	}

	// Backoff settings only matter when backoff is on
	if cfg.Backoff {
		if cfg.BackoffInitial <= 0 {
			errs = append(errs, ValidationError{
				Field:   "backoff_initial",
				Message: "must be positive",
			})
		}
		if cfg.BackoffMax < cfg.BackoffInitial {
			errs = append(errs, ValidationError{
				Field:   "backoff_max",
				Message: "must be >= backoff_initial",
			})
		}
		if cfg.BackoffMultiply < 1.0 {
			errs = append(errs, ValidationError{
				Field:   "backoff_multiply",
				Message: "must be >= 1.0",
			})
		}
	}

	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		errs = append(errs, ValidationError{
			Field:   "jitter",
			Message: fmt.Sprintf("must be between 0.0 and 1.0 (got %g)", cfg.Jitter),
		})
	}

	if cfg.AttemptTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "attempt_timeout",
			Message: "must not be negative",
		})
	}

	if cfg.KillGrace < 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_grace",
			Message: "must not be negative",
		})
	}

	if cfg.StopExitCode < -1 || cfg.StopExitCode > 255 {
		errs = append(errs, ValidationError{
			Field:   "stop_exit_code",
			Message: fmt.Sprintf("must be -1 (disabled) or 0-255 (got %d)", cfg.StopExitCode),
		})
	}
	if cfg.StopExitCode == 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_exit_code",
			Message: "0 is success and cannot also mean stop",
		})
	}

	// Output mode must be valid
	validOutputs := map[string]bool{
		OutputDiscard: true, OutputInherit: true, OutputLog: true, OutputFile: true,
	}
	if !validOutputs[cfg.Output] {
		errs = append(errs, ValidationError{
			Field:   "output",
			Message: fmt.Sprintf("must be one of: discard, inherit, log, file (got %q)", cfg.Output),
		})
	}
	if cfg.Output == OutputFile && cfg.OutputFile == "" {
		errs = append(errs, ValidationError{
			Field:   "output_file",
			Message: "-output file requires -output-file",
		})
	}
	// The dashboard owns the terminal
	if cfg.TUIEnabled && cfg.Output == OutputInherit {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui cannot be combined with -output inherit",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
