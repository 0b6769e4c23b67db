package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/schema"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Limit int
}

// EventsResult is the JSON payload for the events command.
type EventsResult struct {
	JobID  string         `json:"job_id"`
	Events []schema.Event `json:"events"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <job-id>",
		Short: "Show a job's audit events, newest first",
		Long: `Show the append-only audit trail for a job, newest first.

Examples:
  waymark events --db ./waymark.db nightly-etl
  waymark events --db ./waymark.db nightly-etl --limit 20 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events to show (0 = all)")
	return cmd
}

func runEvents(opts *EventsOptions, jobID string, cmd *cobra.Command) error {
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

	events, err := st.ListEvents(context.Background(), jobID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	result := EventsResult{JobID: jobID, Events: events}
	return out.SuccessText(renderEvents(result), result)
}

// renderEvents renders the text view of an audit trail.
func renderEvents(r EventsResult) string {
	if len(r.Events) == 0 {
		return fmt.Sprintf("No events for job %s", r.JobID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Events for job %s:\n", r.JobID)
	for _, e := range r.Events {
		line := fmt.Sprintf("  %s  %-20s", formatTime(&e.CreatedAt), e.EventType)
		if e.StepID != "" {
			line += fmt.Sprintf(" step=%s", e.StepID)
		}
		if e.CorrelationID != "" {
			line += fmt.Sprintf(" corr=%s", e.CorrelationID)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
