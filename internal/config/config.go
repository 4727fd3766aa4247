// Package config provides configuration management for go-service-loop.
package config

import (
	"time"

	"github.com/randomizedcoder/go-service-loop/internal/supervisor"
)

// Output modes for the supervised command.
const (
	OutputDiscard = "discard"
	OutputInherit = "inherit"
	OutputLog     = "log"
	OutputFile    = "file"
)

// Config holds all configuration options for the agent.
type Config struct {
	// Loop
	Interval    time.Duration `json:"interval" yaml:"interval"`
	Consecutive int           `json:"consecutive" yaml:"consecutive"`
	Once        bool          `json:"once" yaml:"once"`
	Duration    time.Duration `json:"duration" yaml:"duration"` // 0 = forever

	// Retry policy
	Backoff         bool          `json:"backoff" yaml:"backoff"`
	BackoffInitial  time.Duration `json:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max" yaml:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply" yaml:"backoff_multiply"`
	Jitter          float64       `json:"jitter" yaml:"jitter"` // fraction of the delay, 0 = none

	// Command
	Command        []string      `json:"command" yaml:"command"`
	Dir            string        `json:"dir" yaml:"dir"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"` // 0 = none
	KillGrace      time.Duration `json:"kill_grace" yaml:"kill_grace"`
	StopExitCode   int           `json:"stop_exit_code" yaml:"stop_exit_code"` // -1 = disabled
	Output         string        `json:"output" yaml:"output"`
	OutputFile     string        `json:"output_file" yaml:"output_file"`

	// Observability
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"` // "" = disabled
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`
	TUIEnabled  bool   `json:"tui" yaml:"tui"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd" yaml:"-"`
	Check         bool `json:"check" yaml:"-"`
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`

	// ConfigFile is the YAML file the values were loaded from, if any.
	ConfigFile string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	backoff := supervisor.DefaultBackoffConfig()
	return &Config{
		// Loop
		Interval:    10 * time.Second,
		Consecutive: 3,
		Duration:    0, // Forever

		// Retry policy
		Backoff:         false,
		BackoffInitial:  backoff.Initial,
		BackoffMax:      backoff.Max,
		BackoffMultiply: backoff.Multiplier,
		Jitter:          0,

		// Command
		KillGrace:    5 * time.Second,
		StopExitCode: -1,
		Output:       OutputInherit,

		// Observability
		MetricsAddr: "127.0.0.1:17092",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// ApplyCheckMode modifies config for --check mode: a single verbose attempt
// with output in the log.
func ApplyCheckMode(cfg *Config) {
	cfg.Once = true
	cfg.Verbose = true
	cfg.TUIEnabled = false
	if cfg.Output == OutputDiscard {
		cfg.Output = OutputLog
	}
}
