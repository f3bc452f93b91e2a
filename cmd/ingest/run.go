package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// errRunFailed makes the process exit non-zero after the report is printed.
var errRunFailed = errors.New("ingestion run completed with failures")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass and print the report",
	Long: `Run the buoy and forecast tasks once, print the run report as JSON on
stdout, and exit non-zero if any task failed. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runOnce(ctx, cfg, defaultUpstreams(cfg), observability.NewMetrics(), cmd.OutOrStdout(), os.Stderr)
	},
}

func runOnce(ctx context.Context, cfg *config.Config, up upstreams, metrics *observability.Metrics, out, logOut io.Writer) error {
	logger := observability.NewLoggerTo(logOut, cfg.LogLevel, cfg.LogFormat)

	a, err := newApp(ctx, cfg, up, clockwork.NewRealClock(), logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	result, err := a.orchestrator.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("%w: %v", errRunFailed, result.FailedTasks())
	}
	return nil
}
