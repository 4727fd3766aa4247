package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file on top of DefaultConfig. Unknown keys
// are rejected so typos do not go unnoticed.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadInto(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// Marshal renders cfg as YAML, in the format LoadFile reads.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
