package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/waymark/internal/schema"
)

const selectJobSQL = `
	SELECT job_id, job_type, status, created_at, started_at, completed_at,
	       duration_ms, config, variables, metadata, created_by, updated_at
	FROM jobs`

const selectStepSQL = `
	SELECT step_id, job_id, step_name, step_type, status, order_index, command,
	       working_directory, environment, output, error, retry_count, max_retries,
	       timeout_seconds, dependencies, artifacts, metadata, started_at,
	       completed_at, duration_ms, created_at, updated_at
	FROM job_steps`

const selectCheckpointSQL = `
	SELECT checkpoint_id, job_id, step_id, checkpoint_type, data, created_at, expires_at, metadata
	FROM checkpoints`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetJob returns the job or nil when absent. Absence is a normal
// outcome, not an error.
func (q *queries) GetJob(ctx context.Context, jobID string) (*schema.Job, error) {
	job, err := q.scanJobRow(q.db.QueryRowContext(ctx, q.bind(selectJobSQL+` WHERE job_id = ?`), jobID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetStep returns the step or nil when absent.
func (q *queries) GetStep(ctx context.Context, stepID string) (*schema.JobStep, error) {
	step, err := q.scanStepRow(q.db.QueryRowContext(ctx, q.bind(selectStepSQL+` WHERE step_id = ?`), stepID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}
	return step, nil
}

// ListSteps returns a job's steps in execution order: order_index
// ascending, ties broken by step_id so the ordering is total.
func (q *queries) ListSteps(ctx context.Context, jobID string) ([]schema.JobStep, error) {
	rows, err := q.db.QueryContext(ctx, q.bind(selectStepSQL+`
		WHERE job_id = ?
		ORDER BY order_index ASC, step_id ASC
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := []schema.JobStep{}
	for rows.Next() {
		step, err := q.scanStepRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		steps = append(steps, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: iterate: %w", err)
	}
	return steps, nil
}

// GetResumePoint reconstructs where execution left off purely from
// committed rows: the completed step with the highest order_index
// (ties broken by step_id), paired with the data of its most recent
// step_complete checkpoint.
//
// Returns nil when the job has no completed steps. Also returns nil
// when the chosen step has no step_complete checkpoint - an
// inconsistent but tolerated state; the caller falls back to resuming
// from the beginning.
func (q *queries) GetResumePoint(ctx context.Context, jobID string) (*schema.ResumePoint, error) {
	var stepID string
	err := q.db.QueryRowContext(ctx, q.bind(`
		SELECT step_id FROM job_steps
		WHERE job_id = ? AND status = ?
		ORDER BY order_index DESC, step_id DESC
		LIMIT 1
	`), jobID, string(schema.StepCompleted)).Scan(&stepID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resume point: %w", err)
	}

	cp, err := q.LatestCheckpoint(ctx, jobID, stepID, schema.CheckpointStepComplete)
	if err != nil {
		return nil, fmt.Errorf("get resume point: %w", err)
	}
	if cp == nil {
		return nil, nil
	}

	return &schema.ResumePoint{StepID: stepID, Data: cp.Data}, nil
}

// LatestCheckpoint returns the most recent checkpoint for
// (jobID, stepID, type), breaking created_at ties by checkpoint_id
// for deterministic results. Nil when none exists.
func (q *queries) LatestCheckpoint(ctx context.Context, jobID, stepID string, ct schema.CheckpointType) (*schema.Checkpoint, error) {
	cp, err := q.scanCheckpointRow(q.db.QueryRowContext(ctx, q.bind(selectCheckpointSQL+`
		WHERE job_id = ? AND step_id = ? AND checkpoint_type = ?
		ORDER BY created_at DESC, checkpoint_id DESC
		LIMIT 1
	`), jobID, stepID, string(ct)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns all checkpoints for a job, oldest first.
func (q *queries) ListCheckpoints(ctx context.Context, jobID string) ([]schema.Checkpoint, error) {
	rows, err := q.db.QueryContext(ctx, q.bind(selectCheckpointSQL+`
		WHERE job_id = ?
		ORDER BY created_at ASC, checkpoint_id ASC
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []schema.Checkpoint{}
	for rows.Next() {
		cp, err := q.scanCheckpointRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: iterate: %w", err)
	}
	return checkpoints, nil
}

// ListArtifacts returns all artifact records for a job, oldest first.
func (q *queries) ListArtifacts(ctx context.Context, jobID string) ([]schema.Artifact, error) {
	rows, err := q.db.QueryContext(ctx, q.bind(`
		SELECT artifact_id, job_id, step_id, artifact_path, artifact_type,
		       size_bytes, checksum, created_at, expires_at, metadata
		FROM artifacts
		WHERE job_id = ?
		ORDER BY created_at ASC, artifact_id ASC
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []schema.Artifact{}
	for rows.Next() {
		var (
			a         schema.Artifact
			sizeBytes sql.NullInt64
			createdNS int64
			expiresNS sql.NullInt64
			metaJSON  string
		)
		if err := rows.Scan(
			&a.ArtifactID, &a.JobID, &a.StepID, &a.ArtifactPath, &a.ArtifactType,
			&sizeBytes, &a.Checksum, &createdNS, &expiresNS, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("list artifacts: scan: %w", err)
		}
		a.SizeBytes = nullToInt64(sizeBytes)
		a.CreatedAt = nsTime(createdNS)
		a.ExpiresAt = nsToTime(expiresNS)
		if a.Metadata, err = unmarshalMap(metaJSON); err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: iterate: %w", err)
	}
	return artifacts, nil
}

// ListEvents returns up to limit audit events for a job, newest
// first. A non-positive limit returns everything.
func (q *queries) ListEvents(ctx context.Context, jobID string, limit int) ([]schema.Event, error) {
	query := `
		SELECT event_id, job_id, step_id, event_type, event_data,
		       created_at, correlation_id, causation_id, metadata
		FROM events
		WHERE job_id = ?
		ORDER BY created_at DESC, event_id DESC`
	args := []any{jobID}
	if limit > 0 {
		query += `
		LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, q.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []schema.Event{}
	for rows.Next() {
		var (
			e         schema.Event
			dataJSON  string
			createdNS int64
			metaJSON  string
		)
		if err := rows.Scan(
			&e.EventID, &e.JobID, &e.StepID, &e.EventType, &dataJSON,
			&createdNS, &e.CorrelationID, &e.CausationID, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("list events: scan: %w", err)
		}
		e.CreatedAt = nsTime(createdNS)
		if e.EventData, err = unmarshalMap(dataJSON); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if e.Metadata, err = unmarshalMap(metaJSON); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: iterate: %w", err)
	}
	return events, nil
}

// JobVersion returns the job's version counter, or 0 for an unknown
// job. The counter increments on every committed status update, which
// makes it a natural version source for optimistic locking.
func (q *queries) JobVersion(ctx context.Context, jobID string) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT version FROM jobs WHERE job_id = ?`), jobID).Scan(&version)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("job version: %w", err)
	}
	return version, nil
}

// StepVersion is JobVersion for steps.
func (q *queries) StepVersion(ctx context.Context, stepID string) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT version FROM job_steps WHERE step_id = ?`), stepID).Scan(&version)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("step version: %w", err)
	}
	return version, nil
}

func (q *queries) scanJobRow(row rowScanner) (*schema.Job, error) {
	var (
		job           schema.Job
		status        string
		createdNS     int64
		startedNS     sql.NullInt64
		completedNS   sql.NullInt64
		durationMS    sql.NullInt64
		configJSON    string
		variablesJSON string
		metaJSON      string
		updatedNS     int64
	)
	err := row.Scan(
		&job.JobID, &job.JobType, &status, &createdNS, &startedNS, &completedNS,
		&durationMS, &configJSON, &variablesJSON, &metaJSON, &job.CreatedBy, &updatedNS,
	)
	if err != nil {
		return nil, err
	}

	job.Status = schema.JobStatus(status)
	job.CreatedAt = nsTime(createdNS)
	job.StartedAt = nsToTime(startedNS)
	job.CompletedAt = nsToTime(completedNS)
	job.DurationMS = nullToInt64(durationMS)
	job.UpdatedAt = nsTime(updatedNS)
	if job.Config, err = unmarshalMap(configJSON); err != nil {
		return nil, err
	}
	if job.Variables, err = unmarshalMap(variablesJSON); err != nil {
		return nil, err
	}
	if job.Metadata, err = unmarshalMap(metaJSON); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *queries) scanStepRow(row rowScanner) (*schema.JobStep, error) {
	var (
		step          schema.JobStep
		status        string
		envJSON       string
		depsJSON      string
		artifactsJSON string
		metaJSON      string
		startedNS     sql.NullInt64
		completedNS   sql.NullInt64
		durationMS    sql.NullInt64
		createdNS     int64
		updatedNS     int64
	)
	err := row.Scan(
		&step.StepID, &step.JobID, &step.StepName, &step.StepType, &status,
		&step.OrderIndex, &step.Command, &step.WorkingDirectory, &envJSON,
		&step.Output, &step.Error, &step.RetryCount, &step.MaxRetries,
		&step.TimeoutSeconds, &depsJSON, &artifactsJSON, &metaJSON,
		&startedNS, &completedNS, &durationMS, &createdNS, &updatedNS,
	)
	if err != nil {
		return nil, err
	}

	step.Status = schema.StepStatus(status)
	step.StartedAt = nsToTime(startedNS)
	step.CompletedAt = nsToTime(completedNS)
	step.DurationMS = nullToInt64(durationMS)
	step.CreatedAt = nsTime(createdNS)
	step.UpdatedAt = nsTime(updatedNS)
	if step.Environment, err = unmarshalStringMap(envJSON); err != nil {
		return nil, err
	}
	if step.Dependencies, err = unmarshalStringSlice(depsJSON); err != nil {
		return nil, err
	}
	if step.Artifacts, err = unmarshalStringSlice(artifactsJSON); err != nil {
		return nil, err
	}
	if step.Metadata, err = unmarshalMap(metaJSON); err != nil {
		return nil, err
	}
	return &step, nil
}

func (q *queries) scanCheckpointRow(row rowScanner) (*schema.Checkpoint, error) {
	var (
		cp        schema.Checkpoint
		ckType    string
		dataJSON  string
		createdNS int64
		expiresNS sql.NullInt64
		metaJSON  string
	)
	err := row.Scan(
		&cp.CheckpointID, &cp.JobID, &cp.StepID, &ckType, &dataJSON,
		&createdNS, &expiresNS, &metaJSON,
	)
	if err != nil {
		return nil, err
	}

	cp.CheckpointType = schema.CheckpointType(ckType)
	cp.CreatedAt = nsTime(createdNS)
	cp.ExpiresAt = nsToTime(expiresNS)
	if cp.Data, err = unmarshalMap(dataJSON); err != nil {
		return nil, err
	}
	if cp.Metadata, err = unmarshalMap(metaJSON); err != nil {
		return nil, err
	}
	return &cp, nil
}
