// Package config loads waymark configuration from YAML with strict
// field validation and sane defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/waymark/internal/backoff"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file (sqlite driver only).
	Path string `yaml:"path,omitempty"`

	// DSN is the connection string (postgres driver only). The
	// WAYMARK_DSN environment variable overrides it so credentials
	// can stay out of the file.
	DSN string `yaml:"dsn,omitempty"`
}

// LockConfig tunes the lease table and retry loop.
type LockConfig struct {
	// TTL is the default lease lifetime.
	TTL time.Duration `yaml:"ttl"`

	// MaxRetries bounds UpdateWithRetry after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the backoff.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Jitter randomizes each delay in [0, delay].
	Jitter bool `yaml:"jitter"`
}

// Backoff builds the retry delay strategy described by the lock
// settings.
func (c LockConfig) Backoff() backoff.Strategy {
	return &backoff.Exponential{Base: c.BaseDelay, Cap: c.MaxDelay, Jitter: c.Jitter}
}

// CheckpointConfig tunes checkpoint retention.
type CheckpointConfig struct {
	// TTL is the default expiry applied to system checkpoints.
	TTL time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9090".
	// Empty disables the endpoint.
	Addr string `yaml:"addr,omitempty"`
}

// Config is the root configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Lock       LockConfig       `yaml:"lock"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Default returns the configuration used when no file is given:
// SQLite in ./waymark.db, 30s leases, 3 retries with jittered
// exponential backoff, 24h checkpoint retention, metrics disabled.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "waymark.db",
		},
		Lock: LockConfig{
			TTL:        30 * time.Second,
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   time.Second,
			Jitter:     true,
		},
		Checkpoint: CheckpointConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected so typos fail loudly instead of silently using a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("WAYMARK_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q (want sqlite or postgres)", c.Storage.Driver)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %v", c.Lock.TTL)
	}
	if c.Lock.MaxRetries < 0 {
		return fmt.Errorf("lock.max_retries must be non-negative, got %d", c.Lock.MaxRetries)
	}
	if c.Lock.BaseDelay < 0 {
		return fmt.Errorf("lock.base_delay must be non-negative, got %v", c.Lock.BaseDelay)
	}
	if c.Lock.MaxDelay > 0 && c.Lock.MaxDelay < c.Lock.BaseDelay {
		return fmt.Errorf("lock.max_delay %v is below lock.base_delay %v", c.Lock.MaxDelay, c.Lock.BaseDelay)
	}
	if c.Checkpoint.TTL < 0 {
		return fmt.Errorf("checkpoint.ttl must be non-negative, got %v", c.Checkpoint.TTL)
	}
	return nil
}
