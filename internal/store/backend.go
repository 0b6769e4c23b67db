package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/waymark/internal/metrics"
	"github.com/roach88/waymark/internal/schema"
)

// queries implements Store over a database/sql handle. Both backends
// share it; bind rewrites the '?' placeholders the SQL here is
// written with into the driver's placeholder style.
type queries struct {
	db            *sql.DB
	bind          func(string) string
	clock         Clock
	checkpointTTL time.Duration
	collector     *metrics.Collector
}

// Close closes the database connection.
func (q *queries) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// bindQuestion leaves '?' placeholders untouched (SQLite).
func bindQuestion(query string) string { return query }

// bindDollar rewrites '?' placeholders to $1..$n (Postgres).
func bindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// execContext is satisfied by both *sql.DB and *sql.Tx so checkpoint
// appends can join an enclosing transaction.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// fillCheckpointDefaults assigns a generated ID, the current time, and
// the default TTL to fields the caller left unset.
func (q *queries) fillCheckpointDefaults(cp *schema.Checkpoint) {
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = q.clock.Now()
	}
	if cp.ExpiresAt == nil && q.checkpointTTL > 0 {
		exp := cp.CreatedAt.Add(q.checkpointTTL)
		cp.ExpiresAt = &exp
	}
}

// insertCheckpoint appends a checkpoint row using the given executor,
// which is a transaction whenever the checkpoint accompanies another
// write. Defaults must already be filled in.
func (q *queries) insertCheckpoint(ctx context.Context, ex execContext, cp *schema.Checkpoint) error {
	dataJSON, err := marshalCheckpointData(cp.Data)
	if err != nil {
		return err
	}
	metaJSON, err := marshalMap(cp.Metadata)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, q.bind(`
		INSERT INTO checkpoints
		(checkpoint_id, job_id, step_id, checkpoint_type, data, created_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		cp.CheckpointID,
		cp.JobID,
		cp.StepID,
		string(cp.CheckpointType),
		dataJSON,
		cp.CreatedAt.UnixNano(),
		timeToNS(cp.ExpiresAt),
		metaJSON,
	)
	if err != nil {
		return err
	}

	q.collector.RecordCheckpointWritten()
	return nil
}
