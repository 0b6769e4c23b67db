package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/lock"
	"github.com/roach88/waymark/internal/schema"
	"github.com/roach88/waymark/internal/store"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Step   string
	Status string
	Output string
	ErrMsg string
	Holder string
}

// UpdateResult is the JSON payload for the update command.
type UpdateResult struct {
	JobID  string `json:"job_id"`
	StepID string `json:"step_id,omitempty"`
	Status string `json:"status"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Update a job or step status under an optimistic lock",
		Long: `Update a job's status, or one step's status with --step.

The write runs under the optimistic lock manager: the row's current
version is read, a lease is acquired against it, and the update only
commits if no other writer moved the version in between. Conflicts are
retried with the configured backoff.

Transition timestamps are filled in automatically: running sets
started_at, terminal statuses set completed_at.

Examples:
  waymark update --db ./waymark.db nightly-etl --status running
  waymark update --db ./waymark.db nightly-etl --step extract --status completed --output "14230 rows"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Step, "step", "", "step ID to update (default: update the job itself)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "new status (required)")
	_ = cmd.MarkFlagRequired("status")
	cmd.Flags().StringVar(&opts.Output, "output", "", "step output to record")
	cmd.Flags().StringVar(&opts.ErrMsg, "error", "", "step error to record")
	cmd.Flags().StringVar(&opts.Holder, "holder", "", "lock holder identity (default: generated)")

	return cmd
}

func runUpdate(opts *UpdateOptions, jobID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	holder := opts.Holder
	if holder == "" {
		holder = "waymark-cli-" + uuid.NewString()
	}
	mgr := lock.NewManager(lock.WithTTL(cfg.Lock.TTL))
	retry := lock.RetryOptions{
		MaxRetries: cfg.Lock.MaxRetries,
		Strategy:   cfg.Lock.Backoff(),
		TTL:        cfg.Lock.TTL,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Step != "" {
		return runStepUpdate(ctx, opts, st, mgr, retry, holder, out)
	}
	return runJobUpdate(ctx, opts, jobID, st, mgr, retry, holder, out)
}

func runJobUpdate(ctx context.Context, opts *UpdateOptions, jobID string, st store.Store, mgr *lock.Manager, retry lock.RetryOptions, holder string, out *OutputFormatter) error {
	status := schema.JobStatus(opts.Status)
	if !schema.ValidJobStatuses[status] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid job status %q", opts.Status))
	}

	update := store.JobStatusUpdate{Status: status}
	fillJobTimestamps(&update, time.Now().UTC())

	err := mgr.UpdateWithRetry(ctx, jobID, holder,
		func(ctx context.Context) (int64, error) {
			return st.JobVersion(ctx, jobID)
		},
		func(ctx context.Context, lease *schema.Lock) error {
			out.VerboseLog("lease %s on %s at version %d", lease.LockID, jobID, lease.Version)
			ok, err := st.UpdateJobStatus(ctx, jobID, update)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job %q not found", jobID)
			}
			return nil
		}, retry)
	if err != nil {
		return WrapExitError(exitCodeFor(err), "failed to update job", err)
	}

	result := UpdateResult{JobID: jobID, Status: opts.Status}
	return out.SuccessText(fmt.Sprintf("Job %s -> %s", jobID, opts.Status), result)
}

func runStepUpdate(ctx context.Context, opts *UpdateOptions, st store.Store, mgr *lock.Manager, retry lock.RetryOptions, holder string, out *OutputFormatter) error {
	status := schema.StepStatus(opts.Status)
	if !schema.ValidStepStatuses[status] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid step status %q", opts.Status))
	}

	update := store.StepStatusUpdate{Status: status}
	fillStepTimestamps(&update, time.Now().UTC())
	if opts.Output != "" {
		update.Output = &opts.Output
	}
	if opts.ErrMsg != "" {
		update.Error = &opts.ErrMsg
	}

	stepID := opts.Step
	var jobID string
	err := mgr.UpdateWithRetry(ctx, stepID, holder,
		func(ctx context.Context) (int64, error) {
			return st.StepVersion(ctx, stepID)
		},
		func(ctx context.Context, lease *schema.Lock) error {
			out.VerboseLog("lease %s on %s at version %d", lease.LockID, stepID, lease.Version)
			ok, err := st.UpdateStepStatus(ctx, stepID, update)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("step %q not found", stepID)
			}
			if step, err := st.GetStep(ctx, stepID); err == nil && step != nil {
				jobID = step.JobID
			}
			return nil
		}, retry)
	if err != nil {
		return WrapExitError(exitCodeFor(err), "failed to update step", err)
	}

	result := UpdateResult{JobID: jobID, StepID: stepID, Status: opts.Status}
	return out.SuccessText(fmt.Sprintf("Step %s -> %s", stepID, opts.Status), result)
}

// fillJobTimestamps derives transition timestamps from the status.
func fillJobTimestamps(u *store.JobStatusUpdate, now time.Time) {
	switch u.Status {
	case schema.JobRunning:
		u.StartedAt = &now
	case schema.JobCompleted, schema.JobFailed, schema.JobCancelled:
		u.CompletedAt = &now
	}
}

func fillStepTimestamps(u *store.StepStatusUpdate, now time.Time) {
	switch u.Status {
	case schema.StepRunning:
		u.StartedAt = &now
	case schema.StepCompleted, schema.StepFailed, schema.StepSkipped, schema.StepCancelled:
		u.CompletedAt = &now
	}
}

// exitCodeFor maps lock conflicts to domain failures and everything
// else to command errors.
func exitCodeFor(err error) int {
	if lock.IsRetriesExhausted(err) || lock.IsConflict(err) || lock.IsVersionConflict(err) {
		return ExitFailure
	}
	return ExitCommandError
}
