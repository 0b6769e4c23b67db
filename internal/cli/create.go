package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/store"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
}

// CreateResult summarizes what create wrote.
type CreateResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Steps    int    `json:"steps"`
	Existing bool   `json:"existing"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <definition.cue>",
		Short: "Create a job and its steps from a definition file",
		Long: `Create a job and its ordered steps from a CUE definition file.

The definition is validated before anything is written. Creation is
idempotent: re-running with the same definition leaves existing rows
unchanged, so a crashed setup can simply be re-run.

Example:
  waymark create --db ./waymark.db ./jobs/nightly-etl.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runCreate(opts *CreateOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	def, err := LoadJobDefinition(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load job definition", err)
	}
	out.VerboseLog("loaded definition %s: job %s, %d steps", path, def.JobID, len(def.Steps))

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

	before, err := st.GetJob(ctx, def.JobID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query job", err)
	}

	job, err := st.CreateJob(ctx, store.CreateJobParams{
		JobID:     def.JobID,
		JobType:   def.JobType,
		Config:    def.Config,
		Variables: def.Variables,
		Metadata:  def.Metadata,
		CreatedBy: def.CreatedBy,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create job", err)
	}

	// Insert in definition order so a failure partway leaves a clean
	// prefix; re-running fills in the rest.
	steps := append([]StepDefinition(nil), def.Steps...)
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].StepID < steps[j].StepID
	})
	for _, s := range steps {
		_, err := st.CreateStep(ctx, store.CreateStepParams{
			StepID:           s.StepID,
			JobID:            def.JobID,
			StepName:         s.Name,
			StepType:         s.Type,
			OrderIndex:       s.Order,
			Command:          s.Command,
			WorkingDirectory: s.WorkingDirectory,
			Environment:      s.Environment,
			Dependencies:     s.Dependencies,
			MaxRetries:       s.MaxRetries,
			TimeoutSeconds:   s.TimeoutSeconds,
			Metadata:         s.Metadata,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to create step %s", s.StepID), err)
		}
	}

	result := CreateResult{
		JobID:    job.JobID,
		Status:   string(job.Status),
		Steps:    len(steps),
		Existing: before != nil,
	}
	verb := "Created"
	if result.Existing {
		verb = "Found existing"
	}
	return out.SuccessText(
		fmt.Sprintf("%s job %s (%s, %d steps)", verb, result.JobID, result.Status, result.Steps),
		result)
}
