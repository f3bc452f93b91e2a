package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/couchcryptid/surf-ingest-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "time/tzdata"
)

type stubRunner struct {
	calls  atomic.Int32
	result domain.RunResult
	err    error
	fired  chan struct{}
	// release, when set, holds each run until it is closed or ctx ends.
	release chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) (domain.RunResult, error) {
	r.calls.Add(1)
	if r.fired != nil {
		r.fired <- struct{}{}
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return domain.RunResult{}, ctx.Err()
		}
	}
	return r.result, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(scheduler.DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func TestNewRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		loc    *time.Location
		runner scheduler.Runner
	}{
		{"malformed expression", "every half hour", time.UTC, &stubRunner{}},
		{"too many fields", "0 5,35 */1 * * * *", time.UTC, &stubRunner{}},
		{"six fields with seconds", "0 5,35 */1 * * *", time.UTC, &stubRunner{}},
		{"descriptor", "@hourly", time.UTC, &stubRunner{}},
		{"interval descriptor", "@every 1s", time.UTC, &stubRunner{}},
		{"timezone prefix", "CRON_TZ=UTC 05,35 * * * *", time.UTC, &stubRunner{}},
		{"nil runner", scheduler.DefaultSchedule, time.UTC, nil},
		{"nil timezone", scheduler.DefaultSchedule, nil, &stubRunner{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scheduler.New(tt.expr, tt.loc, tt.runner, nil, discardLogger(), observability.NewMetricsForTesting())
			assert.Error(t, err)
		})
	}
}

func TestNextHonoursTimezone(t *testing.T) {
	loc := madrid(t)
	s, err := scheduler.New(scheduler.DefaultSchedule, loc, &stubRunner{}, nil, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		// 10:10 in Madrid (CEST, UTC+2).
		{"summer", time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC), time.Date(2024, 5, 1, 8, 35, 0, 0, time.UTC)},
		// 09:40 in Madrid (CET, UTC+1).
		{"winter", time.Date(2024, 1, 15, 8, 40, 0, 0, time.UTC), time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)},
		{"exact firing is excluded", time.Date(2024, 5, 1, 8, 5, 0, 0, time.UTC), time.Date(2024, 5, 1, 8, 35, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := s.Next(tt.now)
			assert.True(t, tt.want.Equal(next), "want %s, got %s", tt.want, next)
			assert.Equal(t, loc, next.Location())
		})
	}
}

func TestFireLogsWithoutPropagatingTaskFailures(t *testing.T) {
	runner := &stubRunner{result: domain.RunResult{
		Success: false,
		Results: []domain.TaskOutcome{{TaskName: "Buoy Scraping", Success: false, Error: "boom"}},
	}}
	metrics := observability.NewMetricsForTesting()
	s, err := scheduler.New(scheduler.DefaultSchedule, time.UTC, runner, nil, discardLogger(), metrics)
	require.NoError(t, err)

	result, err := s.Fire(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SchedulerFirings))
}

func TestFireReturnsRunnerErrors(t *testing.T) {
	runner := &stubRunner{err: errors.New("no tasks configured")}
	s, err := scheduler.New(scheduler.DefaultSchedule, time.UTC, runner, nil, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	_, err = s.Fire(context.Background())
	assert.EqualError(t, err, "no tasks configured")
}

func TestStartTwice(t *testing.T) {
	s, err := scheduler.New(scheduler.DefaultSchedule, time.UTC, &stubRunner{}, nil, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), scheduler.ErrAlreadyStarted)
}

func TestStopIsIdempotent(t *testing.T) {
	s, err := scheduler.New(scheduler.DefaultSchedule, time.UTC, &stubRunner{}, nil, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}

func waitFired(t *testing.T, r *stubRunner) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not fire")
	}
}

func blockUntilWaiting(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1), "scheduler is not waiting for its next firing")
}

func TestStartedSchedulerFiresOnSchedule(t *testing.T) {
	// 10:10 in Madrid.
	fc := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC))
	runner := &stubRunner{fired: make(chan struct{}, 1)}
	s, err := scheduler.New(scheduler.DefaultSchedule, madrid(t), runner, fc, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	blockUntilWaiting(t, fc)
	fc.Advance(24 * time.Minute)
	blockUntilWaiting(t, fc)
	assert.Equal(t, int32(0), runner.calls.Load(), "10:34 is not a firing")

	fc.Advance(time.Minute)
	waitFired(t, runner)

	blockUntilWaiting(t, fc)
	fc.Advance(30 * time.Minute)
	waitFired(t, runner)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestFiringsDueDuringARunAreSkipped(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC))
	runner := &stubRunner{fired: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := scheduler.New(scheduler.DefaultSchedule, madrid(t), runner, fc, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	blockUntilWaiting(t, fc)
	fc.Advance(25 * time.Minute)
	waitFired(t, runner)

	// Two firings fall due while the run is still going.
	fc.Advance(time.Hour)
	close(runner.release)

	blockUntilWaiting(t, fc)
	assert.Equal(t, int32(1), runner.calls.Load())

	fc.Advance(30 * time.Minute)
	waitFired(t, runner)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestStopCancelsInFlightRun(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC))
	runner := &stubRunner{fired: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := scheduler.New(scheduler.DefaultSchedule, time.UTC, runner, fc, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	blockUntilWaiting(t, fc)
	fc.Advance(25 * time.Minute)
	waitFired(t, runner)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a run was in flight")
	}
}

func TestParse(t *testing.T) {
	_, err := scheduler.Parse(scheduler.DefaultSchedule)
	require.NoError(t, err)

	_, err = scheduler.Parse("@daily")
	assert.ErrorContains(t, err, "descriptors")
}

func TestPreview(t *testing.T) {
	loc := madrid(t)
	from := time.Date(2024, 5, 1, 8, 10, 0, 0, time.UTC)

	times, err := scheduler.Preview(scheduler.DefaultSchedule, loc, from, 3)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, "10:35", times[0].Format("15:04"))
	assert.Equal(t, "11:05", times[1].Format("15:04"))
	assert.Equal(t, "11:35", times[2].Format("15:04"))

	_, err = scheduler.Preview("nope", loc, from, 1)
	assert.Error(t, err)
}
