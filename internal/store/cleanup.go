package store

import (
	"context"
	"fmt"
)

// CleanupExpired deletes checkpoints and artifacts whose expires_at
// has passed. Rows with no expiry are never touched, and jobs, steps,
// and events are never deleted by the store.
//
// No correctness depends on timely cleanup - only storage growth
// does - so the two deletes run as independent statements rather than
// one transaction, which keeps the pass safe and cheap to run
// concurrently with all other operations.
func (q *queries) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	now := q.clock.Now().UnixNano()
	var result CleanupResult

	res, err := q.db.ExecContext(ctx, q.bind(`
		DELETE FROM checkpoints
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`), now)
	if err != nil {
		return result, fmt.Errorf("cleanup expired: checkpoints: %w", err)
	}
	if result.ExpiredCheckpoints, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("cleanup expired: checkpoints: rows affected: %w", err)
	}

	res, err = q.db.ExecContext(ctx, q.bind(`
		DELETE FROM artifacts
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`), now)
	if err != nil {
		return result, fmt.Errorf("cleanup expired: artifacts: %w", err)
	}
	if result.ExpiredArtifacts, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("cleanup expired: artifacts: rows affected: %w", err)
	}

	q.collector.RecordRowsReclaimed(result.ExpiredCheckpoints + result.ExpiredArtifacts)
	return result, nil
}
