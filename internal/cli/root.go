// Package cli implements the waymark command line interface: job and
// step creation from CUE definition files, status inspection, resume
// point queries, audit events, and retention cleanup.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/config"
	"github.com/roach88/waymark/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // optional YAML config path
	Database string // SQLite path override, wins over config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the waymark CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "waymark",
		Short: "Waymark - resumable job state store",
		Long:  "Durable, idempotent job/step state with crash-safe checkpoint and resume.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig resolves the effective configuration from the config
// file (or defaults) and the --db override.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Database != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = o.Database
	}
	return cfg, nil
}

// openStore opens the configured backend.
func openStore(cfg *config.Config, extra ...store.Option) (store.Store, error) {
	opts := append([]store.Option{store.WithCheckpointTTL(cfg.Checkpoint.TTL)}, extra...)
	switch cfg.Storage.Driver {
	case "sqlite":
		return store.Open(cfg.Storage.Path, opts...)
	case "postgres":
		return store.OpenPostgres(cfg.Storage.DSN, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// formatter builds the output formatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
