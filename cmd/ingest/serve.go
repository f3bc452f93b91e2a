package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/surf-ingest-service/internal/adapter/http"
	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/couchcryptid/surf-ingest-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the ingestion schedule",
	Long: `Serve /scrape, /runs/last, /healthz, /readyz and /metrics, and trigger an
ingestion run on SCHEDULE (evaluated in SCHEDULE_TIMEZONE) until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	a, err := newApp(ctx, cfg, defaultUpstreams(cfg), clock, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(cfg.Schedule, cfg.ScheduleLocation, a.orchestrator, clock, logger, metrics)
		if err != nil {
			return err
		}
	} else {
		logger.Info("scheduler disabled; runs only on demand")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.orchestrator, a.store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !httpadapter.IsClosed(err) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return err
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if sched != nil {
			sched.Stop()
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
