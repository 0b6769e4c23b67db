package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/waymark/internal/metrics"
	"github.com/roach88/waymark/internal/store"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired checkpoints and artifacts",
		Long: `Delete checkpoint and artifact rows whose TTL has passed.

By default runs one sweep and exits. With --interval it keeps sweeping
until interrupted, and serves Prometheus metrics if the config sets a
metrics address. Cleanup is safe to run concurrently with all other
operations and safe to skip; only storage growth depends on it.

Examples:
  waymark cleanup --db ./waymark.db
  waymark cleanup --config waymark.yaml --interval 10m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "sweep repeatedly at this interval (0 = single sweep)")
	return cmd
}

func runCleanup(opts *CleanupOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var collector *metrics.Collector
	if opts.Interval > 0 && cfg.Metrics.Addr != "" {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				out.VerboseLog("metrics server: %v", err)
			}
		}()
		out.VerboseLog("serving metrics on %s", cfg.Metrics.Addr)
	}

	// The store's own collector hook counts reclaimed rows per sweep.
	var storeOpts []store.Option
	if collector != nil {
		storeOpts = append(storeOpts, store.WithMetrics(collector))
	}
	st, err := openStore(cfg, storeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Interval <= 0 {
		res, err := st.CleanupExpired(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "cleanup failed", err)
		}
		return out.SuccessText(renderCleanup(res), res)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Sweeping every %s. Press Ctrl-C to stop.\n", opts.Interval)
	for {
		res, err := st.CleanupExpired(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "cleanup failed", err)
		}
		out.VerboseLog("swept: %d checkpoints, %d artifacts", res.ExpiredCheckpoints, res.ExpiredArtifacts)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// renderCleanup renders the text view of a cleanup pass.
func renderCleanup(res store.CleanupResult) string {
	return fmt.Sprintf("Deleted %d expired checkpoints and %d expired artifacts",
		res.ExpiredCheckpoints, res.ExpiredArtifacts)
}
