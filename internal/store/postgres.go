package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// pgSchema mirrors schema.sql in Postgres dialect. Timestamp and size
// columns are BIGINT because epoch nanoseconds overflow a 32-bit
// INTEGER there.
const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    job_id       TEXT PRIMARY KEY,
    job_type     TEXT NOT NULL,
    status       TEXT NOT NULL,
    version      BIGINT NOT NULL DEFAULT 1,
    created_at   BIGINT NOT NULL,
    started_at   BIGINT,
    completed_at BIGINT,
    duration_ms  BIGINT,
    config       TEXT NOT NULL DEFAULT '{}',
    variables    TEXT NOT NULL DEFAULT '{}',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_by   TEXT NOT NULL DEFAULT '',
    updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_steps (
    step_id           TEXT PRIMARY KEY,
    job_id            TEXT NOT NULL REFERENCES jobs(job_id),
    step_name         TEXT NOT NULL,
    step_type         TEXT NOT NULL,
    status            TEXT NOT NULL,
    version           BIGINT NOT NULL DEFAULT 1,
    order_index       BIGINT NOT NULL,
    command           TEXT NOT NULL DEFAULT '',
    working_directory TEXT NOT NULL DEFAULT '',
    environment       TEXT NOT NULL DEFAULT '{}',
    output            TEXT NOT NULL DEFAULT '',
    error             TEXT NOT NULL DEFAULT '',
    retry_count       BIGINT NOT NULL DEFAULT 0,
    max_retries       BIGINT NOT NULL DEFAULT 0,
    timeout_seconds   BIGINT NOT NULL DEFAULT 0,
    dependencies      TEXT NOT NULL DEFAULT '[]',
    artifacts         TEXT NOT NULL DEFAULT '[]',
    metadata          TEXT NOT NULL DEFAULT '{}',
    started_at        BIGINT,
    completed_at      BIGINT,
    duration_ms       BIGINT,
    created_at        BIGINT NOT NULL,
    updated_at        BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_steps_job_order
    ON job_steps(job_id, order_index, step_id);

CREATE TABLE IF NOT EXISTS checkpoints (
    checkpoint_id   TEXT PRIMARY KEY,
    job_id          TEXT NOT NULL,
    step_id         TEXT NOT NULL DEFAULT '',
    checkpoint_type TEXT NOT NULL,
    data            TEXT NOT NULL DEFAULT '{}',
    created_at      BIGINT NOT NULL,
    expires_at      BIGINT,
    metadata        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_lookup
    ON checkpoints(job_id, step_id, checkpoint_type, created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_expires
    ON checkpoints(expires_at);

CREATE TABLE IF NOT EXISTS artifacts (
    artifact_id   TEXT PRIMARY KEY,
    job_id        TEXT NOT NULL,
    step_id       TEXT NOT NULL DEFAULT '',
    artifact_path TEXT NOT NULL,
    artifact_type TEXT NOT NULL,
    size_bytes    BIGINT,
    checksum      TEXT NOT NULL DEFAULT '',
    created_at    BIGINT NOT NULL,
    expires_at    BIGINT,
    metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_artifacts_job
    ON artifacts(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_expires
    ON artifacts(expires_at);

CREATE TABLE IF NOT EXISTS events (
    event_id       TEXT PRIMARY KEY,
    job_id         TEXT NOT NULL DEFAULT '',
    step_id        TEXT NOT NULL DEFAULT '',
    event_type     TEXT NOT NULL,
    event_data     TEXT NOT NULL DEFAULT '{}',
    created_at     BIGINT NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    causation_id   TEXT NOT NULL DEFAULT '',
    metadata       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_job
    ON events(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_correlation
    ON events(correlation_id);
`

// PostgresStore is the Postgres-backed Store implementation, for
// deployments that already run Postgres. Semantics are identical to
// the SQLite backend; only the dialect differs.
type PostgresStore struct {
	*queries
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to Postgres with the given DSN and bootstraps
// the schema. Idempotent - safe to call against an existing database.
func OpenPostgres(dsn string, opts ...Option) (*PostgresStore, error) {
	o := buildOptions(opts)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{queries: &queries{
		db:            db,
		bind:          bindDollar,
		clock:         o.clock,
		checkpointTTL: o.checkpointTTL,
		collector:     o.collector,
	}}, nil
}
