// Package memory provides an in-process store for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
)

// Store keeps canonical records in maps keyed by their natural keys.
// Buoy samples are insert-only; forecast records are replaced on conflict.
type Store struct {
	mu        sync.RWMutex
	buoys     map[string]domain.BuoySample
	forecasts map[string]domain.ForecastRecord
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		buoys:     make(map[string]domain.BuoySample),
		forecasts: make(map[string]domain.ForecastRecord),
	}
}

func (s *Store) UpsertBuoySamples(_ context.Context, samples []domain.BuoySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range samples {
		key := sample.Key()
		if _, exists := s.buoys[key]; exists {
			continue
		}
		s.buoys[key] = sample
	}
	return nil
}

func (s *Store) UpsertForecastRecords(_ context.Context, records []domain.ForecastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.ValidSwells = slices.Clone(r.ValidSwells)
		s.forecasts[r.Key()] = r
	}
	return nil
}

// BuoySamples returns all stored samples ordered by buoy then time.
func (s *Store) BuoySamples() []domain.BuoySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BuoySample, 0, len(s.buoys))
	for _, v := range s.buoys {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.BuoySample) int {
		if c := strings.Compare(a.BuoyID, b.BuoyID); c != 0 {
			return c
		}
		return cmp.Compare(a.TimestampMillis, b.TimestampMillis)
	})
	return out
}

// ForecastRecords returns all stored records ordered by spot, source then date.
func (s *Store) ForecastRecords() []domain.ForecastRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ForecastRecord, 0, len(s.forecasts))
	for _, v := range s.forecasts {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.ForecastRecord) int {
		if c := strings.Compare(a.Spot, b.Spot); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Source), string(b.Source)); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
	return out
}

func (s *Store) Ping(context.Context) error { return nil }

// CheckReadiness always succeeds for the in-memory store.
func (s *Store) CheckReadiness(ctx context.Context) error { return s.Ping(ctx) }

func (s *Store) Close() error { return nil }
