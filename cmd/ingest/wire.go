package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/surf-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/surf-ingest-service/internal/adapter/memory"
	"github.com/couchcryptid/surf-ingest-service/internal/adapter/mongo"
	"github.com/couchcryptid/surf-ingest-service/internal/adapter/portus"
	"github.com/couchcryptid/surf-ingest-service/internal/adapter/postgres"
	"github.com/couchcryptid/surf-ingest-service/internal/adapter/surfforecast"
	"github.com/couchcryptid/surf-ingest-service/internal/catalog"
	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/couchcryptid/surf-ingest-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// store is what every persistence backend provides.
type store interface {
	pipeline.BuoyStore
	pipeline.ForecastStore
	CheckReadiness(ctx context.Context) error
	Close() error
}

// app holds the wired components shared by the serve and run commands.
type app struct {
	store        store
	orchestrator *pipeline.Orchestrator
	closers      []func() error
}

// upstreams lets tests swap the HTTP clients for stubs.
type upstreams struct {
	buoys     pipeline.BuoyFetcher
	forecasts pipeline.ForecastFetcher
}

func defaultUpstreams(cfg *config.Config) upstreams {
	return upstreams{
		buoys:     portus.NewClient(cfg.PortusBaseURL, cfg.BuoyTimeout, cfg.UpstreamRPS),
		forecasts: surfforecast.NewClient(cfg.SurfForecastBaseURL, cfg.ForecastTimeout, cfg.UpstreamRPS),
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, logger)
	case config.BackendMongo:
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newApp(ctx context.Context, cfg *config.Config, up upstreams, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded", "buoys", len(cat.Buoys), "spots", len(cat.Spots), "path", cfg.CatalogPath)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	a := &app{store: st, closers: []func() error{st.Close}}

	var buoyStore pipeline.BuoyStore = st
	if cfg.BuoyDedupCacheSize > 0 {
		buoyStore = memory.NewDedupBuoyStore(st, cfg.BuoyDedupCacheSize, metrics)
	}

	buoys := pipeline.NewBuoyWorker(cat.Buoys, up.buoys, buoyStore,
		fetch.SingleAttempt(cfg.BuoyTimeout), clock, logger, metrics)
	forecasts := pipeline.NewForecastWorker(cat.Spots, up.forecasts, surfforecast.Parser{}, st, pipeline.ForecastSettings{
		Policy: fetch.Policy{
			Timeout:     cfg.ForecastTimeout,
			MaxAttempts: cfg.ForecastMaxAttempts,
			BaseBackoff: cfg.ForecastBackoffBase,
			Jitter:      cfg.RetryJitter,
		},
		PolitenessMin: cfg.PolitenessMin,
		PolitenessMax: cfg.PolitenessMax,
		Location:      cfg.SourceLocation,
	}, clock, logger, metrics)

	var opts []pipeline.OrchestratorOption
	if cfg.KafkaEnabled {
		w := kafka.NewReportWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		opts = append(opts, pipeline.WithReportPublisher(w))
		logger.Info("run reports enabled", "topic", cfg.KafkaReportTopic, "brokers", cfg.KafkaBrokers)
	}

	a.orchestrator = pipeline.NewOrchestrator([]pipeline.Task{buoys, forecasts}, clock, logger, metrics, opts...)
	return a, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
