// Package store provides durable storage for jobs, steps, checkpoints,
// artifacts, and the event audit log.
//
// Two backends implement the same Store interface:
//
//   - SQLite (Open): the default, a single local file configured with
//     WAL mode for concurrent reads during writes.
//   - Postgres (OpenPostgres): same semantics over lib/pq for
//     deployments that already run Postgres.
//
// # Write contracts
//
// Creation is idempotent: CreateJob and CreateStep use
// ON CONFLICT DO NOTHING and return the existing row unchanged when
// the ID is already present. A duplicate create performs no second
// write and records no second checkpoint.
//
// Every multi-row write (status update plus its checkpoint, job
// insert plus its job_start checkpoint) executes in a single
// transaction with rollback guaranteed on every exit path. After a
// crash the persisted state is always the result of some prefix of
// the committed calls, never a half-applied call.
//
// Checkpoints, artifacts, and events are append-only. For a given
// (job, step, type) the most recent checkpoint by created_at is
// authoritative; ties are broken by checkpoint_id so query results
// stay deterministic.
//
// # Timestamps
//
// All timestamps are stored as integer nanoseconds since the Unix
// epoch. Integer ordering is total, which keeps "most recent
// checkpoint" well-defined without string-format pitfalls.
//
// # Database configuration (SQLite)
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
