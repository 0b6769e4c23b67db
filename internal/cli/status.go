package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/schema"
)

// StatusResult is the JSON payload for the status command.
type StatusResult struct {
	Job   *schema.Job      `json:"job"`
	Steps []schema.JobStep `json:"steps"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job and its steps",
		Long: `Show a job's current status and every step in execution order.

Examples:
  waymark status --db ./waymark.db nightly-etl
  waymark status --db ./waymark.db nightly-etl --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, jobID string, cmd *cobra.Command) error {
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

	ctx := context.Background()
	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query job", err)
	}
	if job == nil {
		_ = out.Error(ErrCodeNoJob, fmt.Sprintf("job %q not found", jobID), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("job %q not found", jobID))
	}
	steps, err := st.ListSteps(ctx, jobID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list steps", err)
	}

	result := StatusResult{Job: job, Steps: steps}
	return out.SuccessText(renderStatus(result), result)
}

// renderStatus renders the text view of a job and its steps.
func renderStatus(r StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:     %s (%s)\n", r.Job.JobID, r.Job.JobType)
	fmt.Fprintf(&b, "Status:  %s\n", r.Job.Status)
	fmt.Fprintf(&b, "Created: %s by %s\n", formatTime(&r.Job.CreatedAt), orDash(r.Job.CreatedBy))
	if r.Job.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", formatTime(r.Job.StartedAt))
	}
	if r.Job.CompletedAt != nil {
		fmt.Fprintf(&b, "Done:    %s", formatTime(r.Job.CompletedAt))
		if r.Job.DurationMS != nil {
			fmt.Fprintf(&b, " (%dms)", *r.Job.DurationMS)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Steps:   %d\n", len(r.Steps))
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  [%3d] %-12s %s (%s)", s.OrderIndex, s.Status, s.StepID, s.StepName)
		if s.RetryCount > 0 {
			fmt.Fprintf(&b, " retries=%d", s.RetryCount)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, " error=%q", s.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatTime renders timestamps in UTC at second precision.
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
