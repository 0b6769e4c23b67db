package store

import (
	"context"
	"time"

	"github.com/roach88/waymark/internal/schema"
)

// Clock supplies the current time. Injected so TTL expiry and
// timestamp behavior are testable without sleeping.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, reading the wall clock in UTC.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// CreateJobParams holds the caller-supplied fields for CreateJob.
type CreateJobParams struct {
	JobID     string
	JobType   string
	Config    map[string]any
	Variables map[string]any
	Metadata  map[string]any
	CreatedBy string
}

// CreateStepParams holds the caller-supplied fields for CreateStep.
type CreateStepParams struct {
	StepID           string
	JobID            string
	StepName         string
	StepType         string
	OrderIndex       int
	Command          string
	WorkingDirectory string
	Environment      map[string]string
	Dependencies     []string
	MaxRetries       int
	TimeoutSeconds   int
	Metadata         map[string]any
}

// JobStatusUpdate describes a job status transition. Nil optional
// fields leave the stored value untouched.
type JobStatusUpdate struct {
	Status      schema.JobStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  *int64
}

// StepStatusUpdate describes a step status transition. Nil optional
// fields leave the stored value untouched.
type StepStatusUpdate struct {
	Status      schema.StepStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  *int64
	Output      *string
	Error       *string
	RetryCount  *int
}

// CleanupResult reports how many expired rows a cleanup pass deleted.
type CleanupResult struct {
	ExpiredCheckpoints int64 `json:"expired_checkpoints"`
	ExpiredArtifacts   int64 `json:"expired_artifacts"`
}

// Store is the durable row store shared by the job runner and the
// CLI. Absence is a normal outcome throughout: missing rows surface
// as nil results or false, never as errors.
//
// Implementations must serialize conflicting writes through the
// underlying engine's transaction isolation and must keep every
// multi-row write atomic.
type Store interface {
	// CreateJob inserts a job with status pending and, in the same
	// transaction, a job_start checkpoint capturing its config and
	// variables. If the job already exists it is returned unchanged
	// and nothing is written.
	CreateJob(ctx context.Context, p CreateJobParams) (*schema.Job, error)

	// CreateStep inserts a step with status pending. Same idempotency
	// contract as CreateJob, scoped to the step ID.
	CreateStep(ctx context.Context, p CreateStepParams) (*schema.JobStep, error)

	// UpdateJobStatus atomically updates the job row, bumps its
	// version, and appends a system checkpoint snapshotting the new
	// fields. Returns false when the job is unknown.
	UpdateJobStatus(ctx context.Context, jobID string, u JobStatusUpdate) (bool, error)

	// UpdateStepStatus is UpdateJobStatus for steps. The checkpoint
	// type is step_start when the new status is running, otherwise
	// step_complete; only step_complete checkpoints feed resume.
	UpdateStepStatus(ctx context.Context, stepID string, u StepStatusUpdate) (bool, error)

	// GetResumePoint returns the last completed step (max order
	// index, ties broken by step ID) together with the data of its
	// most recent step_complete checkpoint. Returns nil when the job
	// has no completed steps, or when the chosen step has no
	// step_complete checkpoint (the caller then resumes from the
	// beginning).
	GetResumePoint(ctx context.Context, jobID string) (*schema.ResumePoint, error)

	// CreateCheckpoint appends a checkpoint. A zero CheckpointID is
	// assigned a generated one; a nil ExpiresAt defaults to the
	// store's checkpoint TTL.
	CreateCheckpoint(ctx context.Context, cp schema.Checkpoint) (*schema.Checkpoint, error)

	// CreateArtifact appends an artifact reference record.
	CreateArtifact(ctx context.Context, a schema.Artifact) (*schema.Artifact, error)

	// LogEvent appends an audit event.
	LogEvent(ctx context.Context, e schema.Event) (*schema.Event, error)

	// GetJob returns the job or nil when absent.
	GetJob(ctx context.Context, jobID string) (*schema.Job, error)

	// GetStep returns the step or nil when absent.
	GetStep(ctx context.Context, stepID string) (*schema.JobStep, error)

	// ListSteps returns the job's steps ordered by order index, then
	// step ID. Empty slice (not nil) when the job has no steps.
	ListSteps(ctx context.Context, jobID string) ([]schema.JobStep, error)

	// LatestCheckpoint returns the most recent checkpoint for
	// (jobID, stepID, type), or nil when none exists. An empty stepID
	// matches job-level checkpoints.
	LatestCheckpoint(ctx context.Context, jobID, stepID string, ct schema.CheckpointType) (*schema.Checkpoint, error)

	// ListCheckpoints returns all checkpoints for a job, oldest first.
	ListCheckpoints(ctx context.Context, jobID string) ([]schema.Checkpoint, error)

	// ListArtifacts returns all artifact records for a job, oldest first.
	ListArtifacts(ctx context.Context, jobID string) ([]schema.Artifact, error)

	// ListEvents returns up to limit audit events for a job, newest
	// first. A non-positive limit means no limit.
	ListEvents(ctx context.Context, jobID string, limit int) ([]schema.Event, error)

	// JobVersion returns the job's current version counter, or 0 when
	// the job is unknown. Used as the version source for optimistic
	// locking over jobs.
	JobVersion(ctx context.Context, jobID string) (int64, error)

	// StepVersion is JobVersion for steps.
	StepVersion(ctx context.Context, stepID string) (int64, error)

	// CleanupExpired deletes checkpoints and artifacts whose
	// expires_at has passed. Safe to run concurrently with all other
	// operations and safe to skip.
	CleanupExpired(ctx context.Context) (CleanupResult, error)

	// Close releases the underlying database handle.
	Close() error
}
