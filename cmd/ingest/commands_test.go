package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckListsCatalogAndFirings(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	cfg := &config.Config{
		StoreBackend:     config.BackendMemory,
		Schedule:         "05,35 */1 * * *",
		ScheduleLocation: loc,
		SchedulerEnabled: true,
	}

	var out bytes.Buffer
	require.NoError(t, check(&out, cfg, time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC), 2))

	text := out.String()
	assert.Contains(t, text, "embedded default (3 buoys, 5 spots)")
	assert.Contains(t, text, "buoy  2136  Bilbao-Vizcaya")
	assert.Contains(t, text, "spot  Mundaka")
	assert.Contains(t, text, "next  2024-05-01T10:35:00+02:00")
	assert.Contains(t, text, "next  2024-05-01T11:05:00+02:00")
}

func TestCheckRejectsBadSchedule(t *testing.T) {
	cfg := &config.Config{Schedule: "whenever", ScheduleLocation: time.UTC}
	assert.Error(t, check(&bytes.Buffer{}, cfg, time.Now(), 1))
}

func setParseOpts(t *testing.T, source, now string) {
	t.Helper()
	saved := parseOpts
	t.Cleanup(func() { parseOpts = saved })
	parseOpts.source = source
	parseOpts.spot = "Mundaka"
	parseOpts.now = now
	parseOpts.tz = "Europe/Madrid"
}

func TestParseFragment(t *testing.T) {
	setParseOpts(t, string(domain.SourceHourly), "2024-04-29T06:00:00Z")
	badCell := `<td class="forecast-table__cell forecast-table-wave-height__cell" data-date="Mon 29 3PM"></td>`
	fragment := fmt.Sprintf(cell, "Mon 29 2PM") + "<tr>" + badCell + "</tr>"

	var out bytes.Buffer
	require.NoError(t, parseFragment(strings.NewReader(fragment), &out))

	var got domain.ParsedForecast
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Mundaka", got.Records[0].Spot)
	assert.Equal(t, domain.SourceHourly, got.Records[0].Source)
	assert.True(t, time.Date(2024, 4, 29, 12, 0, 0, 0, time.UTC).Equal(got.Records[0].Date), "14:00 CEST is 12:00 UTC")
	require.Len(t, got.Skipped, 1)
	assert.Equal(t, 1, got.Skipped[0].Index)
}

func TestParseFragmentRejectsUnknownSource(t *testing.T) {
	setParseOpts(t, "monthly", "")
	assert.ErrorContains(t, parseFragment(strings.NewReader(""), &bytes.Buffer{}), "unknown source")
}
