// Package scheduler triggers ingestion runs on a cron expression evaluated in
// a fixed timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "05,35 */1 * * *"
	DefaultTimezone = "Europe/Madrid"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// fiveField parses minute hour day-of-month month day-of-week. Descriptors
// such as @hourly are rejected.
var fiveField = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a five-field cron expression. The timezone is supplied
// separately, so TZ= prefixes are rejected too.
func Parse(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "TZ=") || strings.HasPrefix(trimmed, "CRON_TZ=") {
		return nil, fmt.Errorf("parse schedule %q: timezone prefixes are not supported", expr)
	}
	schedule, err := fiveField.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context) (domain.RunResult, error)
}

// Scheduler fires Runner.Run on every match of its cron expression. Runs
// never overlap: the next firing is computed once the previous run returns,
// so firings that fall due during a run are skipped.
type Scheduler struct {
	expr     string
	loc      *time.Location
	schedule cron.Schedule
	runner   Runner
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New validates expr and returns a Scheduler that has not been started.
func New(expr string, loc *time.Location, runner Runner, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if loc == nil {
		return nil, errors.New("scheduler: timezone is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		expr:     expr,
		loc:      loc,
		schedule: schedule,
		runner:   runner,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Next returns the first firing strictly after now, in the scheduler's
// timezone.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.loc))
}

// Preview returns the next n firings of expr after from, in loc.
func Preview(expr string, loc *time.Location, from time.Time, n int) ([]time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, n)
	t := from.In(loc)
	for range n {
		t = schedule.Next(t)
		times = append(times, t)
	}
	return times, nil
}

// Start begins firing in a background goroutine. Runs inherit ctx values and
// are cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.started = true
	go s.loop(runCtx, done)

	s.logger.Info("scheduler started", "schedule", s.expr, "timezone", s.loc.String(), "next", s.Next(s.clock.Now()))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := s.clock.Now()
		timer := s.clock.NewTimer(s.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		s.fireRecovering(ctx)
	}
}

func (s *Scheduler) fireRecovering(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "panic", r)
		}
	}()
	_, _ = s.Fire(ctx)
}

// Stop cancels any in-flight run and waits for it to return. It is safe to
// call more than once, and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Fire performs one scheduled run synchronously. Task failures are logged,
// not returned; the error is non-nil only when the run could not execute.
func (s *Scheduler) Fire(ctx context.Context) (domain.RunResult, error) {
	s.metrics.SchedulerFirings.Inc()
	s.logger.Info("scheduled run firing")

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return result, err
	}
	if !result.Success {
		s.logger.Warn("scheduled run finished with failures",
			"run_id", result.RunID, "failed_tasks", result.FailedTasks(), "duration_ms", result.DurationMs)
		return result, nil
	}
	s.logger.Info("scheduled run finished", "run_id", result.RunID, "duration_ms", result.DurationMs)
	return result, nil
}
