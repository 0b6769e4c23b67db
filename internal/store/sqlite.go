package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/waymark/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added correlation index on events
const currentSchemaVersion = 1

// DefaultCheckpointTTL bounds storage growth: checkpoints created
// without an explicit expiry become reclaimable after this long.
const DefaultCheckpointTTL = 24 * time.Hour

// SQLiteStore is the SQLite-backed Store implementation.
// Uses WAL mode for concurrent read access during writes.
type SQLiteStore struct {
	*queries
}

var _ Store = (*SQLiteStore)(nil)

// Option configures a store at open time.
type Option func(*storeOptions)

type storeOptions struct {
	clock         Clock
	checkpointTTL time.Duration
	collector     *metrics.Collector
}

// WithClock injects a clock. Defaults to the wall clock in UTC.
func WithClock(c Clock) Option {
	return func(o *storeOptions) { o.clock = c }
}

// WithCheckpointTTL overrides the default checkpoint TTL applied when
// a checkpoint is created without an explicit expiry.
func WithCheckpointTTL(ttl time.Duration) Option {
	return func(o *storeOptions) { o.checkpointTTL = ttl }
}

// WithMetrics wires a metrics collector. Nil disables instrumentation.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *storeOptions) { o.collector = c }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		clock:         systemClock{},
		checkpointTTL: DefaultCheckpointTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{queries: &queries{
		db:            db,
		bind:          bindQuestion,
		clock:         o.clock,
		checkpointTTL: o.checkpointTTL,
		collector:     o.collector,
	}}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the correlation index for existing databases.
// New databases get this from schema.sql; CREATE INDEX IF NOT EXISTS
// is a no-op when it already exists.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_correlation
		ON events(correlation_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
