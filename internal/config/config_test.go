package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalforge/fsmrt/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "dsn: ./fsmrt-demo.db\n")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}
	if cfg.RetryInterval != 30*time.Second {
		t.Errorf("RetryInterval = %v, want 30s default", cfg.RetryInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info default", cfg.LogLevel)
	}
}

func TestLoadConfig_HonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
dsn: ./fsmrt-demo.db
listen_addr: 0.0.0.0:9090
retry_interval: 5s
store_signals: true
log_level: debug
`)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.RetryInterval != 5*time.Second {
		t.Errorf("RetryInterval = %v", cfg.RetryInterval)
	}
	if !cfg.StoreSignals {
		t.Error("expected StoreSignals true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfig_MissingDSNFails(t *testing.T) {
	path := writeConfig(t, "listen_addr: 127.0.0.1:8080\n")

	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing dsn")
	}
}

func TestLoadConfig_InvalidLogLevelFails(t *testing.T) {
	path := writeConfig(t, "dsn: ./fsmrt-demo.db\nlog_level: verbose\n")

	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected validation error for invalid log_level")
	}
}

func TestLoadConfig_NegativeRetryIntervalFails(t *testing.T) {
	path := writeConfig(t, "dsn: ./fsmrt-demo.db\nretry_interval: -5s\n")

	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected validation error for negative retry_interval")
	}
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
