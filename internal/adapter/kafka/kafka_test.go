package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	started := time.Date(2024, 5, 1, 8, 5, 0, 0, time.UTC)
	result := domain.RunResult{
		RunID:   "run-1",
		Success: false,
		Results: []domain.TaskOutcome{
			{TaskName: "Buoy Scraping", Success: true, DurationMs: 1200},
			{TaskName: "Surf Forecast Scraping", Success: false, Error: "all 5 spots failed", DurationMs: 40000},
		},
		DurationMs: 41200,
		StartedAt:  started,
	}

	msg, err := serializeToMessage(result)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "success", msg.Headers[0].Key)
	assert.Equal(t, []byte("false"), msg.Headers[0].Value)
	assert.Equal(t, "started_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(started.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, false, decoded["success"])
	results := decoded["results"].([]any)
	require.Len(t, results, 2)
	second := results[1].(map[string]any)
	assert.Equal(t, "Surf Forecast Scraping", second["taskName"])
	assert.Equal(t, "all 5 spots failed", second["error"])
	first := results[0].(map[string]any)
	assert.NotContains(t, first, "error")
}

func TestNewReportWriterUsesConfig(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"broker-1:9092", "broker-2:9092"}, KafkaReportTopic: "surf-ingest-runs"}
	w := NewReportWriter(cfg, nil)
	defer w.Close()

	assert.Equal(t, "surf-ingest-runs", w.writer.Topic)
	assert.NotNil(t, w.writer.Addr)
}
