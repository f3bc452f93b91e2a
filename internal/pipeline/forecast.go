package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ForecastSettings tunes the forecast worker.
type ForecastSettings struct {
	Policy fetch.Policy
	// Each spot is preceded by a pause drawn uniformly from [PolitenessMin, PolitenessMax].
	PolitenessMin time.Duration
	PolitenessMax time.Duration
	// Location is the civil timezone of the upstream date labels.
	Location *time.Location
}

// ForecastWorker ingests the hourly and general forecasts of every spot.
type ForecastWorker struct {
	spots    []string
	fetcher  ForecastFetcher
	parser   ForecastParser
	store    ForecastStore
	retrier  *fetch.Retrier
	settings ForecastSettings
	randN    func(n int64) int64
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewForecastWorker creates a ForecastWorker.
func NewForecastWorker(
	spots []string,
	fetcher ForecastFetcher,
	parser ForecastParser,
	store ForecastStore,
	settings ForecastSettings,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *ForecastWorker {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.PolitenessMax < settings.PolitenessMin {
		settings.PolitenessMax = settings.PolitenessMin
	}
	return &ForecastWorker{
		spots:    spots,
		fetcher:  fetcher,
		parser:   parser,
		store:    store,
		retrier:  fetch.NewRetrier(settings.Policy, clock, attemptRecorder(metrics, "surf-forecast")),
		settings: settings,
		randN:    rand.Int64N,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

func (w *ForecastWorker) Name() string { return ForecastTaskName }

// Run ingests each spot, isolating per-spot failures. It returns an error
// only when no spots are configured, the context ends, or every spot failed.
func (w *ForecastWorker) Run(ctx context.Context) error {
	if len(w.spots) == 0 {
		return fmt.Errorf("surf spots: %w", ErrNoTargets)
	}

	start := w.clock.Now()
	var report domain.WorkerReport

	for _, spot := range w.spots {
		if err := fetch.Sleep(ctx, w.clock, w.politenessDelay()); err != nil {
			return fmt.Errorf("surf forecast scraping interrupted: %w", err)
		}

		n, err := w.ingestSpot(ctx, spot)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("surf forecast scraping interrupted: %w", ctx.Err())
			}
			w.logger.Error("surf forecast failed", "spot", spot, "error", err)
			report.Failed = append(report.Failed, spot)
			w.metrics.TargetsTotal.WithLabelValues("forecast", "failed").Inc()
			continue
		}

		report.Updated++
		w.metrics.TargetsTotal.WithLabelValues("forecast", "updated").Inc()
		w.logger.Info("surf forecast updated", "spot", spot, "records", n)
	}

	w.logger.Info("surf forecast scraping finished",
		"updated", report.Updated,
		"failed", len(report.Failed),
		"duration_ms", w.clock.Since(start).Milliseconds(),
	)
	if len(report.Failed) > 0 {
		w.logger.Warn("some surf spots failed", "spots", report.Failed)
	}
	return report.Err("spots")
}

func (w *ForecastWorker) politenessDelay() time.Duration {
	lo, hi := w.settings.PolitenessMin, w.settings.PolitenessMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(w.randN(int64(hi-lo)+1))
}

func (w *ForecastWorker) ingestSpot(ctx context.Context, spot string) (int, error) {
	hourly, err := fetch.Do(ctx, w.retrier, func(ctx context.Context) (string, error) {
		return w.fetcher.FetchHourly(ctx, spot)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch hourly forecast: %w", err)
	}
	general, err := fetch.Do(ctx, w.retrier, func(ctx context.Context) (string, error) {
		return w.fetcher.FetchGeneral(ctx, spot)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch general forecast: %w", err)
	}

	parts := []struct {
		source   domain.ForecastSource
		fragment string
	}{
		{domain.SourceGeneral, general},
		{domain.SourceHourly, hourly},
	}

	total := 0
	for _, part := range parts {
		cal := domain.NewCalendar(w.clock.Now(), w.settings.Location)
		res, err := w.parser.ParseForecast(spot, part.source, part.fragment, cal)
		if err != nil {
			return total, fmt.Errorf("parse %s forecast: %w", part.source, err)
		}
		for _, s := range res.Skipped {
			w.logger.Debug("skipping forecast cell", "spot", spot, "source", part.source, "index", s.Index, "reason", s.Reason)
		}
		if len(res.Skipped) > 0 {
			w.metrics.CellsSkipped.WithLabelValues(string(part.source)).Add(float64(len(res.Skipped)))
		}
		if len(res.Records) == 0 {
			continue
		}

		if err := w.store.UpsertForecastRecords(ctx, res.Records); err != nil {
			return total, fmt.Errorf("store %s forecast: %w", part.source, err)
		}
		total += len(res.Records)
		w.metrics.RecordsPersisted.WithLabelValues("forecast").Add(float64(len(res.Records)))
	}
	return total, nil
}
