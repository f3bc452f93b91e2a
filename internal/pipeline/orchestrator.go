package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNoTasks is returned by Run when the orchestrator has nothing to execute.
var ErrNoTasks = errors.New("no tasks configured")

// Orchestrator executes its tasks sequentially and aggregates their outcomes.
// Concurrent Run calls are serialized.
type Orchestrator struct {
	tasks     []Task
	publisher ReportPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	newID     func() string

	mu   sync.Mutex
	last atomic.Pointer[domain.RunResult]
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReportPublisher hands every RunResult to p after the run.
func WithReportPublisher(p ReportPublisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = fn }
}

// NewOrchestrator creates an Orchestrator running tasks in the given order.
func NewOrchestrator(tasks []Task, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		tasks:   tasks,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LastRun returns the result of the most recent completed run, if any.
func (o *Orchestrator) LastRun() (domain.RunResult, bool) {
	last := o.last.Load()
	if last == nil {
		return domain.RunResult{}, false
	}
	return *last, true
}

// Run executes every task and returns the aggregated result. Task failures
// are reported in the result; an error is returned only when no tasks are
// configured.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunResult, error) {
	if len(o.tasks) == 0 {
		return domain.RunResult{}, ErrNoTasks
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics.RunInProgress.Set(1)
	defer o.metrics.RunInProgress.Set(0)

	start := o.clock.Now()
	result := domain.RunResult{
		RunID:     o.newID(),
		Success:   true,
		Results:   make([]domain.TaskOutcome, 0, len(o.tasks)),
		StartedAt: start.UTC(),
	}
	logger := o.logger.With("run_id", result.RunID)
	logger.Info("run started", "tasks", len(o.tasks))

	for _, task := range o.tasks {
		outcome := o.execute(ctx, logger, task)
		result.Results = append(result.Results, outcome)
		if !outcome.Success {
			result.Success = false
		}
	}

	elapsed := o.clock.Since(start)
	result.DurationMs = elapsed.Milliseconds()
	o.metrics.RunDuration.Observe(elapsed.Seconds())

	if result.Success {
		o.metrics.RunsTotal.WithLabelValues("success").Inc()
		logger.Info("run completed", "duration_ms", result.DurationMs)
	} else {
		o.metrics.RunsTotal.WithLabelValues("partial").Inc()
		logger.Warn("run completed with failures", "duration_ms", result.DurationMs, "failed_tasks", result.FailedTasks())
	}
	o.last.Store(&result)

	if o.publisher != nil {
		if err := o.publisher.PublishRunResult(ctx, result); err != nil {
			o.metrics.ReportPublishErrors.Inc()
			logger.Warn("publish run report failed", "error", err)
		}
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, task Task) domain.TaskOutcome {
	name := task.Name()
	start := o.clock.Now()
	logger.Info("task started", "task", name)

	err := runTask(ctx, task)

	elapsed := o.clock.Since(start)
	outcome := domain.TaskOutcome{
		TaskName:   name,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
	}
	o.metrics.TaskDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		outcome.Error = err.Error()
		o.metrics.TaskOutcomes.WithLabelValues(name, "failure").Inc()
		logger.Error("task failed", "task", name, "error", err, "duration_ms", outcome.DurationMs)
		return outcome
	}
	o.metrics.TaskOutcomes.WithLabelValues(name, "success").Inc()
	logger.Info("task completed", "task", name, "duration_ms", outcome.DurationMs)
	return outcome
}

// runTask converts a panicking task into an error.
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}
