package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
)

var errUpstream = errors.New("upstream unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- buoy fetcher stub ---

type stubBuoyFetcher struct {
	mu       sync.Mutex
	readings map[string][]domain.PortusReading
	errs     map[string]error
	calls    []string
}

func (s *stubBuoyFetcher) FetchStation(_ context.Context, target domain.BuoyTarget) ([]domain.PortusReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, target.ID)
	if err := s.errs[target.ID]; err != nil {
		return nil, err
	}
	return s.readings[target.ID], nil
}

func reading(fecha string, height string) domain.PortusReading {
	return domain.PortusReading{
		Fecha: fecha,
		Datos: []domain.PortusDatum{
			{ID: 32, NombreParametro: domain.ParamHeight, Valor: domain.PortusValue(height)},
			{ID: 34, NombreParametro: domain.ParamPeakPeriod, Valor: "1200"},
		},
	}
}

// --- forecast fetcher stub ---

type stubForecastFetcher struct {
	mu      sync.Mutex
	hourly  map[string]string
	general map[string]string
	// failures[spot] is the number of calls that fail before succeeding.
	failures map[string]int
	calls    map[string]int
}

func (s *stubForecastFetcher) FetchHourly(_ context.Context, slug string) (string, error) {
	return s.fetch(slug, s.hourly)
}

func (s *stubForecastFetcher) FetchGeneral(_ context.Context, slug string) (string, error) {
	return s.fetch(slug, s.general)
}

func (s *stubForecastFetcher) fetch(slug string, content map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[slug]++
	if s.failures[slug] > 0 {
		s.failures[slug]--
		return "", errUpstream
	}
	c, ok := content[slug]
	if !ok {
		return "", errUpstream
	}
	return c, nil
}

func (s *stubForecastFetcher) callCount(slug string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[slug]
}

func forecastCell(date string) string {
	return fmt.Sprintf(`<td class="forecast-table__cell forecast-table-wave-height__cell" data-date="%s" `+
		`data-swell-state='[{"period":12,"angle":300,"height":1.5}]' `+
		`data-wind='{"speed":10,"direction":{"angle":200}}' `+
		`data-swell-energies='[{"value":500}]'></td>`, date)
}

func forecastRow(dates ...string) string {
	cells := make([]string, len(dates))
	for i, d := range dates {
		cells[i] = forecastCell(d)
	}
	return "<tr>" + strings.Join(cells, "") + "</tr>"
}

// --- failing stores ---

type failingStore struct{ err error }

func (f failingStore) UpsertBuoySamples(context.Context, []domain.BuoySample) error { return f.err }

func (f failingStore) UpsertForecastRecords(context.Context, []domain.ForecastRecord) error {
	return f.err
}
