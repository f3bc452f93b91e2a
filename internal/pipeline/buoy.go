package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrNoTargets is returned by a worker whose catalog is empty.
var ErrNoTargets = errors.New("no targets configured")

// BuoyWorker ingests every configured buoy station in catalog order.
type BuoyWorker struct {
	targets []domain.BuoyTarget
	fetcher BuoyFetcher
	store   BuoyStore
	retrier *fetch.Retrier
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBuoyWorker creates a BuoyWorker. policy governs each station fetch.
func NewBuoyWorker(
	targets []domain.BuoyTarget,
	fetcher BuoyFetcher,
	store BuoyStore,
	policy fetch.Policy,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *BuoyWorker {
	return &BuoyWorker{
		targets: targets,
		fetcher: fetcher,
		store:   store,
		retrier: fetch.NewRetrier(policy, clock, attemptRecorder(metrics, "portus")),
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

func (w *BuoyWorker) Name() string { return BuoyTaskName }

// Run ingests each buoy, isolating per-buoy failures. It returns an error
// only when the catalog is empty, the context ends, or every attempted buoy
// failed.
func (w *BuoyWorker) Run(ctx context.Context) error {
	if len(w.targets) == 0 {
		return fmt.Errorf("buoys: %w", ErrNoTargets)
	}

	start := w.clock.Now()
	var report domain.WorkerReport

	for _, target := range w.targets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("buoy scraping interrupted: %w", err)
		}

		if strings.TrimSpace(target.Body) == "" {
			w.logger.Warn("buoy has no request body, skipping", "buoy_id", target.ID, "name", target.Name)
			report.Skipped = append(report.Skipped, target.ID)
			w.metrics.TargetsTotal.WithLabelValues("buoy", "skipped").Inc()
			continue
		}

		w.logger.Info("fetching buoy", "buoy_id", target.ID, "name", target.Name)
		n, err := w.ingest(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("buoy scraping interrupted: %w", ctx.Err())
			}
			w.logger.Error("buoy ingestion failed", "buoy_id", target.ID, "name", target.Name, "error", err)
			report.Failed = append(report.Failed, target.ID)
			w.metrics.TargetsTotal.WithLabelValues("buoy", "failed").Inc()
			continue
		}

		report.Updated++
		w.metrics.TargetsTotal.WithLabelValues("buoy", "updated").Inc()
		w.logger.Info("buoy updated", "buoy_id", target.ID, "samples", n)
	}

	w.logger.Info("buoy scraping finished",
		"updated", report.Updated,
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"duration_ms", w.clock.Since(start).Milliseconds(),
	)
	if len(report.Failed) > 0 {
		w.logger.Warn("some buoys failed", "buoy_ids", report.Failed)
	}
	return report.Err("buoys")
}

func (w *BuoyWorker) ingest(ctx context.Context, target domain.BuoyTarget) (int, error) {
	readings, err := fetch.Do(ctx, w.retrier, func(ctx context.Context) ([]domain.PortusReading, error) {
		return w.fetcher.FetchStation(ctx, target)
	})
	if err != nil {
		return 0, err
	}

	samples, skipped := domain.NormalizeBuoyReadings(target.ID, readings)
	if skipped > 0 {
		w.logger.Warn("dropped buoy readings with invalid timestamps", "buoy_id", target.ID, "count", skipped)
		w.metrics.ReadingsSkipped.Add(float64(skipped))
	}
	if len(samples) == 0 {
		return 0, nil
	}

	if err := w.store.UpsertBuoySamples(ctx, samples); err != nil {
		return 0, fmt.Errorf("store samples: %w", err)
	}
	w.metrics.RecordsPersisted.WithLabelValues("buoy").Add(float64(len(samples)))
	return len(samples), nil
}
