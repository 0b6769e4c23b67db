package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/waymark/internal/schema"
)

// CreateJob inserts a job idempotently. A new job gets status pending
// and a job_start checkpoint in the same transaction; an existing job
// is returned unchanged with nothing written.
func (q *queries) CreateJob(ctx context.Context, p CreateJobParams) (*schema.Job, error) {
	now := q.clock.Now()

	configJSON, err := marshalMap(p.Config)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	variablesJSON, err := marshalMap(p.Variables)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metaJSON, err := marshalMap(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create job: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, q.bind(`
		INSERT INTO jobs
		(job_id, job_type, status, version, created_at, config, variables, metadata, created_by, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`),
		p.JobID,
		p.JobType,
		string(schema.JobPending),
		now.UnixNano(),
		configJSON,
		variablesJSON,
		metaJSON,
		p.CreatedBy,
		now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create job: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create job: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Job already exists - return it unchanged, no second write
		job, err := q.scanJobRow(tx.QueryRowContext(ctx, q.bind(selectJobSQL+` WHERE job_id = ?`), p.JobID))
		if err != nil {
			return nil, fmt.Errorf("create job: read existing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("create job: commit (existing): %w", err)
		}
		return job, nil
	}

	// New job - record the creation checkpoint in the same transaction
	cp := schema.Checkpoint{
		JobID:          p.JobID,
		CheckpointType: schema.CheckpointJobStart,
		Data: map[string]any{
			"status":    "created",
			"config":    nonNilMap(p.Config),
			"variables": nonNilMap(p.Variables),
		},
	}
	q.fillCheckpointDefaults(&cp)
	if err := q.insertCheckpoint(ctx, tx, &cp); err != nil {
		return nil, fmt.Errorf("create job: checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create job: commit: %w", err)
	}

	q.collector.RecordJobCreated()

	return &schema.Job{
		JobID:     p.JobID,
		JobType:   p.JobType,
		Status:    schema.JobPending,
		CreatedAt: now,
		Config:    nonNilMap(p.Config),
		Variables: nonNilMap(p.Variables),
		Metadata:  nonNilMap(p.Metadata),
		CreatedBy: p.CreatedBy,
		UpdatedAt: now,
	}, nil
}

// CreateStep inserts a step idempotently with status pending.
// The referenced job must exist (foreign key constraint).
func (q *queries) CreateStep(ctx context.Context, p CreateStepParams) (*schema.JobStep, error) {
	now := q.clock.Now()

	envJSON, err := marshalStringMap(p.Environment)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}
	depsJSON, err := marshalStringSlice(p.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}
	metaJSON, err := marshalMap(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}

	result, err := q.db.ExecContext(ctx, q.bind(`
		INSERT INTO job_steps
		(step_id, job_id, step_name, step_type, status, version, order_index, command,
		 working_directory, environment, dependencies, max_retries, timeout_seconds,
		 metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(step_id) DO NOTHING
	`),
		p.StepID,
		p.JobID,
		p.StepName,
		p.StepType,
		string(schema.StepPending),
		p.OrderIndex,
		p.Command,
		p.WorkingDirectory,
		envJSON,
		depsJSON,
		p.MaxRetries,
		p.TimeoutSeconds,
		metaJSON,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create step: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create step: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Step already exists - return it unchanged
		step, err := q.GetStep(ctx, p.StepID)
		if err != nil {
			return nil, fmt.Errorf("create step: read existing: %w", err)
		}
		return step, nil
	}

	q.collector.RecordStepCreated()

	return &schema.JobStep{
		StepID:           p.StepID,
		JobID:            p.JobID,
		StepName:         p.StepName,
		StepType:         p.StepType,
		Status:           schema.StepPending,
		OrderIndex:       p.OrderIndex,
		Command:          p.Command,
		WorkingDirectory: p.WorkingDirectory,
		Environment:      p.Environment,
		Dependencies:     p.Dependencies,
		MaxRetries:       p.MaxRetries,
		TimeoutSeconds:   p.TimeoutSeconds,
		Metadata:         nonNilMap(p.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// UpdateJobStatus updates the job row and appends a system checkpoint
// snapshotting the new fields, atomically. The checkpoint makes every
// status transition replayable from the checkpoint log alone.
// Returns false when the job is unknown.
func (q *queries) UpdateJobStatus(ctx context.Context, jobID string, u JobStatusUpdate) (bool, error) {
	now := q.clock.Now()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update job status: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, q.bind(`
		UPDATE jobs
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at),
		    duration_ms = COALESCE(?, duration_ms),
		    version = version + 1,
		    updated_at = ?
		WHERE job_id = ?
	`),
		string(u.Status),
		timeToNS(u.StartedAt),
		timeToNS(u.CompletedAt),
		int64ToNull(u.DurationMS),
		now.UnixNano(),
		jobID,
	)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update job status: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	cp := schema.Checkpoint{
		JobID:          jobID,
		CheckpointType: schema.CheckpointSystem,
		Data:           statusSnapshot(string(u.Status), u.StartedAt, u.CompletedAt, u.DurationMS),
	}
	q.fillCheckpointDefaults(&cp)
	if err := q.insertCheckpoint(ctx, tx, &cp); err != nil {
		return false, fmt.Errorf("update job status: checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update job status: commit: %w", err)
	}

	q.collector.RecordStatusUpdate()
	return true, nil
}

// UpdateStepStatus updates the step row and appends a checkpoint in
// the same transaction. The checkpoint type is step_start when the
// new status is running, otherwise step_complete; resume only ever
// consults step_complete checkpoints.
// Returns false when the step is unknown.
func (q *queries) UpdateStepStatus(ctx context.Context, stepID string, u StepStatusUpdate) (bool, error) {
	now := q.clock.Now()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update step status: begin tx: %w", err)
	}
	defer tx.Rollback()

	// The checkpoint needs the owning job, so resolve it first. A
	// missing row short-circuits to false before anything is written.
	var jobID string
	err = tx.QueryRowContext(ctx, q.bind(`SELECT job_id FROM job_steps WHERE step_id = ?`), stepID).Scan(&jobID)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update step status: resolve job: %w", err)
	}

	_, err = tx.ExecContext(ctx, q.bind(`
		UPDATE job_steps
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at),
		    duration_ms = COALESCE(?, duration_ms),
		    output = COALESCE(?, output),
		    error = COALESCE(?, error),
		    retry_count = COALESCE(?, retry_count),
		    version = version + 1,
		    updated_at = ?
		WHERE step_id = ?
	`),
		string(u.Status),
		timeToNS(u.StartedAt),
		timeToNS(u.CompletedAt),
		int64ToNull(u.DurationMS),
		nullString(u.Output),
		nullString(u.Error),
		nullInt(u.RetryCount),
		now.UnixNano(),
		stepID,
	)
	if err != nil {
		return false, fmt.Errorf("update step status: %w", err)
	}

	ckType := schema.CheckpointStepComplete
	if u.Status == schema.StepRunning {
		ckType = schema.CheckpointStepStart
	}

	data := statusSnapshot(string(u.Status), u.StartedAt, u.CompletedAt, u.DurationMS)
	if u.Output != nil {
		data["output"] = *u.Output
	}
	if u.Error != nil {
		data["error"] = *u.Error
	}
	if u.RetryCount != nil {
		data["retry_count"] = *u.RetryCount
	}

	cp := schema.Checkpoint{
		JobID:          jobID,
		StepID:         stepID,
		CheckpointType: ckType,
		Data:           data,
	}
	q.fillCheckpointDefaults(&cp)
	if err := q.insertCheckpoint(ctx, tx, &cp); err != nil {
		return false, fmt.Errorf("update step status: checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update step status: commit: %w", err)
	}

	q.collector.RecordStatusUpdate()
	return true, nil
}

// CreateCheckpoint appends a checkpoint outside any status update.
// Callers use this for manual snapshots mid-step.
func (q *queries) CreateCheckpoint(ctx context.Context, cp schema.Checkpoint) (*schema.Checkpoint, error) {
	if cp.CheckpointType == "" {
		cp.CheckpointType = schema.CheckpointManual
	}
	q.fillCheckpointDefaults(&cp)
	if err := q.insertCheckpoint(ctx, q.db, &cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return &cp, nil
}

// CreateArtifact appends an artifact reference. Artifacts have no
// default TTL; they persist until the caller sets an expiry.
func (q *queries) CreateArtifact(ctx context.Context, a schema.Artifact) (*schema.Artifact, error) {
	if a.ArtifactID == "" {
		a.ArtifactID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = q.clock.Now()
	}

	metaJSON, err := marshalMap(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	_, err = q.db.ExecContext(ctx, q.bind(`
		INSERT INTO artifacts
		(artifact_id, job_id, step_id, artifact_path, artifact_type, size_bytes, checksum, created_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		a.ArtifactID,
		a.JobID,
		a.StepID,
		a.ArtifactPath,
		a.ArtifactType,
		int64ToNull(a.SizeBytes),
		a.Checksum,
		a.CreatedAt.UnixNano(),
		timeToNS(a.ExpiresAt),
		metaJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	return &a, nil
}

// LogEvent appends an audit event. Pure write-once log.
func (q *queries) LogEvent(ctx context.Context, e schema.Event) (*schema.Event, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = q.clock.Now()
	}

	dataJSON, err := marshalMap(e.EventData)
	if err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}
	metaJSON, err := marshalMap(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}

	_, err = q.db.ExecContext(ctx, q.bind(`
		INSERT INTO events
		(event_id, job_id, step_id, event_type, event_data, created_at, correlation_id, causation_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		e.EventID,
		e.JobID,
		e.StepID,
		e.EventType,
		dataJSON,
		e.CreatedAt.UnixNano(),
		e.CorrelationID,
		e.CausationID,
		metaJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}

	q.collector.RecordEventLogged()
	return &e, nil
}

// statusSnapshot builds the checkpoint payload for a status
// transition. Only fields the caller supplied appear, so the snapshot
// reflects exactly what the update changed.
func statusSnapshot(status string, startedAt, completedAt *time.Time, durationMS *int64) map[string]any {
	data := map[string]any{"status": status}
	if startedAt != nil {
		data["started_at"] = startedAt.UnixNano()
	}
	if completedAt != nil {
		data["completed_at"] = completedAt.UnixNano()
	}
	if durationMS != nil {
		data["duration_ms"] = *durationMS
	}
	return data
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
