// Package config provides YAML configuration loading and validation for the
// cmd/demo example binary. The library itself takes no configuration file —
// only this outer application does, the same division of labor the teacher
// uses (library logic takes explicit params; only cmd/* reads YAML).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for cmd/demo.
type Config struct {
	// DSN is the embedded-engine database path (e.g. "./fsmrt-demo.db").
	// Required.
	DSN string `yaml:"dsn"`

	// ListenAddr is the listen address for the demo's HTTP query surface
	// (e.g. "127.0.0.1:8080"). Defaults to "127.0.0.1:8080" when omitted.
	ListenAddr string `yaml:"listen_addr"`

	// RetryInterval is how long the drain scheduler waits before retrying a
	// failed apply. Defaults to 30s when omitted.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// StoreSignals toggles the signal-store audit log.
	StoreSignals bool `yaml:"store_signals"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("retry_interval %s must not be negative", cfg.RetryInterval))
	}

	return errors.Join(errs...)
}
