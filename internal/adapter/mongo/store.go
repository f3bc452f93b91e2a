// Package mongo persists canonical records in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	buoyCollection     = "buoysData"
	forecastCollection = "surfforecasts"
	duplicateKeyCode   = 11000
)

// Store writes buoy samples and forecast records to MongoDB collections
// guarded by unique indexes on the natural keys.
type Store struct {
	client    *mongo.Client
	buoys     *mongo.Collection
	forecasts *mongo.Collection
	logger    *slog.Logger
}

// Open connects to uri, pings the primary and ensures the unique indexes.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		buoys:     db.Collection(buoyCollection),
		forecasts: db.Collection(forecastCollection),
		logger:    logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.buoys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "buoyId", Value: 1}, {Key: "date", Value: -1}},
		Options: options.Index().SetUnique(true).SetName("buoy_date_unique"),
	}); err != nil {
		return fmt.Errorf("ensure %s index: %w", buoyCollection, err)
	}
	if _, err := s.forecasts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "spot", Value: 1}, {Key: "date", Value: -1}, {Key: "source", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("spot_date_source_unique"),
	}); err != nil {
		return fmt.Errorf("ensure %s index: %w", forecastCollection, err)
	}
	s.logger.Info("mongo indexes ensured", "collections", []string{buoyCollection, forecastCollection})
	return nil
}

type buoyDocument struct {
	BuoyID        string    `bson:"buoyId"`
	Date          time.Time `bson:"date"`
	Period        float64   `bson:"period"`
	Height        float64   `bson:"height"`
	AvgDirection  float64   `bson:"avgDirection"`
	PeakDirection *float64  `bson:"peakDirection,omitempty"`
}

type swellDocument struct {
	Angle  float64 `bson:"angle"`
	Height float64 `bson:"height"`
	Period float64 `bson:"period"`
}

// UpsertBuoySamples inserts samples unordered; duplicate-key failures for
// samples already stored are ignored.
func (s *Store) UpsertBuoySamples(ctx context.Context, samples []domain.BuoySample) error {
	if len(samples) == 0 {
		return nil
	}
	docs := make([]any, len(samples))
	for i, sample := range samples {
		docs[i] = buoyDocument{
			BuoyID:        sample.BuoyID,
			Date:          sample.Time(),
			Period:        sample.Period,
			Height:        sample.Height,
			AvgDirection:  sample.AvgDirection,
			PeakDirection: sample.PeakDirection,
		}
	}

	res, err := s.buoys.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("insert buoy samples: %w", err)
	}
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	s.logger.Debug("buoy samples written", "received", len(samples), "inserted", inserted)
	return nil
}

// UpsertForecastRecords replaces the mutable fields of each record, inserting
// it when absent.
func (s *Store) UpsertForecastRecords(ctx context.Context, records []domain.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(records))
	for i, r := range records {
		swells := make([]swellDocument, len(r.ValidSwells))
		for j, sw := range r.ValidSwells {
			swells[j] = swellDocument{Angle: sw.Angle, Height: sw.Height, Period: sw.Period}
		}
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{
				{Key: "spot", Value: r.Spot},
				{Key: "date", Value: r.Date.UTC()},
				{Key: "source", Value: string(r.Source)},
			}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "validSwells", Value: swells},
				{Key: "wind", Value: bson.D{{Key: "speed", Value: r.Wind.Speed}, {Key: "angle", Value: r.Wind.Angle}}},
				{Key: "energy", Value: r.Energy},
				{Key: "updatedAt", Value: time.Now().UTC()},
			}}}).
			SetUpsert(true)
	}

	if _, err := s.forecasts.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("upsert forecast records: %w", err)
	}
	return nil
}

// onlyDuplicateKeys reports whether err consists solely of duplicate-key
// write errors.
func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// CheckReadiness reports whether the primary is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("mongo unavailable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
