package schema

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobPaused    JobStatus = "paused"
)

// ValidJobStatuses defines the allowed job statuses.
var ValidJobStatuses = map[JobStatus]bool{
	JobPending:   true,
	JobRunning:   true,
	JobCompleted: true,
	JobFailed:    true,
	JobCancelled: true,
	JobPaused:    true,
}

// StepStatus is the lifecycle state of a single step within a job.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// ValidStepStatuses defines the allowed step statuses.
var ValidStepStatuses = map[StepStatus]bool{
	StepPending:   true,
	StepReady:     true,
	StepRunning:   true,
	StepCompleted: true,
	StepFailed:    true,
	StepSkipped:   true,
	StepCancelled: true,
}

// CheckpointType classifies what a checkpoint snapshots.
type CheckpointType string

const (
	CheckpointJobStart     CheckpointType = "job_start"
	CheckpointStepStart    CheckpointType = "step_start"
	CheckpointStepComplete CheckpointType = "step_complete"
	CheckpointManual       CheckpointType = "manual"
	CheckpointSystem       CheckpointType = "system"
)

// Job is a unit of work composed of ordered steps.
//
// Jobs are created once (idempotently), mutated only through status
// updates, and never physically deleted by the store. TTL cleanup
// touches checkpoints and artifacts only.
type Job struct {
	JobID       string         `json:"job_id"`
	JobType     string         `json:"job_type"`
	Status      JobStatus      `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	Config      map[string]any `json:"config"`
	Variables   map[string]any `json:"variables"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedBy   string         `json:"created_by"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// JobStep is one executable unit within a job.
//
// OrderIndex defines execution order within the job. Values are not
// required to be contiguous; ties are broken by StepID so that resume
// ordering stays deterministic.
type JobStep struct {
	StepID           string            `json:"step_id"`
	JobID            string            `json:"job_id"`
	StepName         string            `json:"step_name"`
	StepType         string            `json:"step_type"`
	Status           StepStatus        `json:"status"`
	OrderIndex       int               `json:"order_index"`
	Command          string            `json:"command"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	Output           string            `json:"output,omitempty"`
	Error            string            `json:"error,omitempty"`
	RetryCount       int               `json:"retry_count"`
	MaxRetries       int               `json:"max_retries"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	Artifacts        []string          `json:"artifacts,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	DurationMS       *int64            `json:"duration_ms,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Checkpoint is an immutable, timestamped snapshot of state tied to a
// job or step transition. Append-only; never mutated. For a given
// (job, step, type) the most recent checkpoint by CreatedAt is
// authoritative.
type Checkpoint struct {
	CheckpointID   string         `json:"checkpoint_id"`
	JobID          string         `json:"job_id"`
	StepID         string         `json:"step_id,omitempty"`
	CheckpointType CheckpointType `json:"checkpoint_type"`
	Data           map[string]any `json:"data"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Artifact is an append-only reference to bytes produced by a job or
// step. The store records the reference only; it does not manage the
// referenced bytes.
type Artifact struct {
	ArtifactID   string         `json:"artifact_id"`
	JobID        string         `json:"job_id"`
	StepID       string         `json:"step_id,omitempty"`
	ArtifactPath string         `json:"artifact_path"`
	ArtifactType string         `json:"artifact_type"`
	SizeBytes    *int64         `json:"size_bytes,omitempty"`
	Checksum     string         `json:"checksum,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Event is a write-once audit record. CorrelationID groups events
// belonging to one logical operation; CausationID points at the event
// that triggered this one.
type Event struct {
	EventID       string         `json:"event_id"`
	JobID         string         `json:"job_id,omitempty"`
	StepID        string         `json:"step_id,omitempty"`
	EventType     string         `json:"event_type"`
	EventData     map[string]any `json:"event_data,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CausationID   string         `json:"causation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ResumePoint identifies where a job's execution left off: the last
// completed step (by order index) and the data of its most recent
// completion checkpoint.
type ResumePoint struct {
	StepID string         `json:"step_id"`
	Data   map[string]any `json:"data"`
}
