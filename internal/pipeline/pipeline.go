// Package pipeline runs the ingestion tasks: fetch from each upstream,
// normalize, and persist.
package pipeline

import (
	"context"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
)

// Task names reported in run results.
const (
	BuoyTaskName     = "Buoy Scraping"
	ForecastTaskName = "Surf Forecast Scraping"
)

// Task is one unit of work within a run.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// BuoyFetcher retrieves raw readings for a buoy station.
type BuoyFetcher interface {
	FetchStation(ctx context.Context, target domain.BuoyTarget) ([]domain.PortusReading, error)
}

// ForecastFetcher retrieves the forecast table fragments for a spot.
type ForecastFetcher interface {
	FetchHourly(ctx context.Context, slug string) (string, error)
	FetchGeneral(ctx context.Context, slug string) (string, error)
}

// ForecastParser turns a forecast table fragment into records. cal resolves
// the cell dates and is fresh for each fragment.
type ForecastParser interface {
	ParseForecast(spot string, source domain.ForecastSource, fragment string, cal *domain.Calendar) (domain.ParsedForecast, error)
}

// BuoyStore persists buoy samples. Duplicate samples must be tolerated.
type BuoyStore interface {
	UpsertBuoySamples(ctx context.Context, samples []domain.BuoySample) error
}

// ForecastStore persists forecast records, replacing existing ones.
type ForecastStore interface {
	UpsertForecastRecords(ctx context.Context, records []domain.ForecastRecord) error
}

// ReportPublisher receives the result of every run.
type ReportPublisher interface {
	PublishRunResult(ctx context.Context, result domain.RunResult) error
}

// taskFunc adapts a function to the Task interface.
type taskFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTask wraps fn as a named Task.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return taskFunc{name: name, fn: fn}
}

func (t taskFunc) Name() string                  { return t.name }
func (t taskFunc) Run(ctx context.Context) error { return t.fn(ctx) }

// attemptRecorder returns a retry hook counting attempt transitions for upstream.
func attemptRecorder(metrics *observability.Metrics, upstream string) fetch.Option {
	return fetch.WithAttemptHook(func(a fetch.Attempt) {
		metrics.FetchAttempts.WithLabelValues(upstream, a.State.String()).Inc()
	})
}
