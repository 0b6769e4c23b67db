package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waymark.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Lock.TTL != 30*time.Second {
		t.Errorf("lock TTL = %v, want 30s", cfg.Lock.TTL)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
  dsn: postgres://localhost/waymark?sslmode=disable
lock:
  ttl: 5s
  max_retries: 10
  base_delay: 50ms
  max_delay: 2s
  jitter: false
checkpoint:
  ttl: 1h
metrics:
  addr: ":9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Storage.Driver)
	}
	if cfg.Lock.TTL != 5*time.Second {
		t.Errorf("lock TTL = %v, want 5s", cfg.Lock.TTL)
	}
	if cfg.Lock.MaxRetries != 10 {
		t.Errorf("max retries = %d, want 10", cfg.Lock.MaxRetries)
	}
	if cfg.Lock.Jitter {
		t.Error("jitter should be disabled")
	}
	if cfg.Checkpoint.TTL != time.Hour {
		t.Errorf("checkpoint TTL = %v, want 1h", cfg.Checkpoint.TTL)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  path: /tmp/state.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/tmp/state.db" {
		t.Errorf("path = %q, want /tmp/state.db", cfg.Storage.Path)
	}
	if cfg.Lock.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default 3", cfg.Lock.MaxRetries)
	}
	if cfg.Checkpoint.TTL != 24*time.Hour {
		t.Errorf("checkpoint TTL = %v, want default 24h", cfg.Checkpoint.TTL)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  path: state.db
lck:
  ttl: 5s
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoad_EnvOverridesDSN(t *testing.T) {
	t.Setenv("WAYMARK_DSN", "postgres://prod-host/waymark")
	path := writeConfig(t, `
storage:
  driver: postgres
  dsn: postgres://localhost/waymark
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DSN != "postgres://prod-host/waymark" {
		t.Errorf("DSN = %q, want env override", cfg.Storage.DSN)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }, "storage.dsn"},
		{"zero ttl", func(c *Config) { c.Lock.TTL = 0 }, "lock.ttl"},
		{"negative retries", func(c *Config) { c.Lock.MaxRetries = -1 }, "lock.max_retries"},
		{"max below base", func(c *Config) { c.Lock.BaseDelay = time.Second; c.Lock.MaxDelay = time.Millisecond }, "lock.max_delay"},
		{"negative checkpoint ttl", func(c *Config) { c.Checkpoint.TTL = -time.Hour }, "checkpoint.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}
