package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/schema"
)

// ResumeResult is the JSON payload for the resume command.
type ResumeResult struct {
	JobID       string              `json:"job_id"`
	ResumePoint *schema.ResumePoint `json:"resume_point"`
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Show where an interrupted job should continue",
		Long: `Show a job's resume point: the last completed step and the data of
its completion checkpoint, reconstructed purely from committed rows.

When no resume point exists the job restarts from the beginning; the
command reports that with exit code 1 so scripts can branch on it.

Examples:
  waymark resume --db ./waymark.db nightly-etl
  waymark resume --db ./waymark.db nightly-etl --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runResume(opts *RootOptions, jobID string, cmd *cobra.Command) error {
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

	rp, err := st.GetResumePoint(ctx, jobID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compute resume point", err)
	}

	result := ResumeResult{JobID: jobID, ResumePoint: rp}
	if rp == nil {
		if err := out.SuccessText(
			fmt.Sprintf("Job %s has no resume point; start from the beginning", jobID),
			result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "no resume point")
	}
	return out.SuccessText(renderResume(result), result)
}

// renderResume renders the text view of a resume point.
func renderResume(r ResumeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s resumes after step %s\n", r.JobID, r.ResumePoint.StepID)
	keys := make([]string, 0, len(r.ResumePoint.Data))
	for k := range r.ResumePoint.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, r.ResumePoint.Data[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
