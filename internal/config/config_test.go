package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"libretto/internal/config"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := config.Default()
	if cfg.Pipeline.Workers <= 0 {
		t.Fatalf("expected positive default worker count, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.HeartbeatTimeout <= cfg.Pipeline.HeartbeatInterval {
		t.Fatal("default heartbeat timeout must exceed the interval")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected default log format %q", cfg.Logging.Format)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config")
	}
	if cfg.Pipeline.Workers != config.Default().Pipeline.Workers {
		t.Fatalf("expected default workers, got %d", cfg.Pipeline.Workers)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[pipeline]
workers = 2
heartbeat_interval = 5
heartbeat_timeout = 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be loaded, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Pipeline.Workers)
	}
	// Omitted fields fall back to defaults.
	if cfg.Pipeline.LinkRetryAttempts != config.Default().Pipeline.LinkRetryAttempts {
		t.Fatalf("expected default link retry attempts, got %d", cfg.Pipeline.LinkRetryAttempts)
	}
}

func TestValidateRejectsBadHeartbeat(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.HeartbeatInterval = 60
	cfg.Pipeline.HeartbeatTimeout = 30
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "heartbeat_timeout") {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for unknown format")
	}
}
