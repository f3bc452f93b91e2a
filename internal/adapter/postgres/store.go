// Package postgres persists canonical records in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const defaultBatchSize = 200

const insertBuoySample = `
INSERT INTO buoy_samples (buoy_id, observed_at, period, height, avg_direction, peak_direction)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (buoy_id, observed_at) DO NOTHING`

const upsertForecast = `
INSERT INTO surf_forecasts (spot, forecast_at, source, valid_swells, wind_speed, wind_angle, energy)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (spot, forecast_at, source) DO UPDATE SET
    valid_swells = EXCLUDED.valid_swells,
    wind_speed   = EXCLUDED.wind_speed,
    wind_angle   = EXCLUDED.wind_angle,
    energy       = EXCLUDED.energy,
    updated_at   = now()`

// Store writes buoy samples and forecast records through a pgx pool.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	logger    *slog.Logger
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string, maxConns int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("postgres store ready", "max_conns", cfg.MaxConns)
	return &Store{pool: pool, batchSize: defaultBatchSize, logger: logger}, nil
}

// UpsertBuoySamples inserts samples, ignoring ones already stored.
func (s *Store) UpsertBuoySamples(ctx context.Context, samples []domain.BuoySample) error {
	inserted, err := s.sendChunked(ctx, len(samples), func(b *pgx.Batch, i int) {
		sample := samples[i]
		b.Queue(insertBuoySample,
			sample.BuoyID, sample.Time(), sample.Period, sample.Height, sample.AvgDirection, sample.PeakDirection)
	})
	if err != nil {
		return fmt.Errorf("insert buoy samples: %w", err)
	}
	s.logger.Debug("buoy samples written", "received", len(samples), "inserted", inserted)
	return nil
}

// UpsertForecastRecords inserts records or replaces the mutable fields of
// existing ones.
func (s *Store) UpsertForecastRecords(ctx context.Context, records []domain.ForecastRecord) error {
	swells := make([][]byte, len(records))
	for i, r := range records {
		vs := r.ValidSwells
		if vs == nil {
			vs = []domain.Swell{}
		}
		data, err := json.Marshal(vs)
		if err != nil {
			return fmt.Errorf("encode swells for %s: %w", r.Spot, err)
		}
		swells[i] = data
	}

	_, err := s.sendChunked(ctx, len(records), func(b *pgx.Batch, i int) {
		r := records[i]
		b.Queue(upsertForecast,
			r.Spot, r.Date.UTC(), string(r.Source), swells[i], r.Wind.Speed, r.Wind.Angle, r.Energy)
	})
	if err != nil {
		return fmt.Errorf("upsert forecast records: %w", err)
	}
	return nil
}

// sendChunked queues n statements in batches and returns the total number of
// affected rows.
func (s *Store) sendChunked(ctx context.Context, n int, queue func(b *pgx.Batch, i int)) (int64, error) {
	var total int64
	for start := 0; start < n; start += s.batchSize {
		end := min(start+s.batchSize, n)

		b := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(b, i)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := start; k < end; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, err
			}
			total += tag.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CheckReadiness reports whether the database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unavailable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
