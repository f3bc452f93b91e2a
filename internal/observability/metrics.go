package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "surf_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion service.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec // labels: outcome={success,partial}
	RunDuration   prometheus.Histogram
	RunInProgress prometheus.Gauge

	TaskOutcomes *prometheus.CounterVec   // labels: task, outcome={success,failure}
	TaskDuration *prometheus.HistogramVec // labels: task

	// Per-target metrics.
	TargetsTotal     *prometheus.CounterVec // labels: worker={buoy,forecast}, outcome={updated,failed,skipped}
	RecordsPersisted *prometheus.CounterVec // labels: kind={buoy,forecast}
	CellsSkipped     *prometheus.CounterVec // labels: source
	ReadingsSkipped  prometheus.Counter

	FetchAttempts *prometheus.CounterVec // labels: upstream, state

	SchedulerFirings    prometheus.Counter
	ReportPublishErrors prometheus.Counter
	DedupLookups        *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestrated runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete orchestrated run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is executing, 0 otherwise.",
		}),
		TaskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Task executions by task and outcome.",
		}, []string{"task", "outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of each task within a run.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"task"}),
		TargetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_total",
			Help:      "Ingestion targets processed by worker and outcome.",
		}, []string{"worker", "outcome"}),
		RecordsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Canonical records handed to the store.",
		}, []string{"kind"}),
		CellsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cells_skipped_total",
			Help:      "Forecast cells skipped because of missing or malformed attributes.",
		}, []string{"source"}),
		ReadingsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buoy_readings_skipped_total",
			Help:      "Buoy readings dropped because of an unparseable timestamp.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempt transitions by upstream and state.",
		}, []string{"upstream", "state"}),
		SchedulerFirings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_firings_total",
			Help:      "Scheduled firings.",
		}),
		ReportPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_publish_errors_total",
			Help:      "Run reports that could not be published.",
		}),
		DedupLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buoy_dedup_lookups_total",
			Help:      "Buoy sample dedup cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunInProgress,
		m.TaskOutcomes,
		m.TaskDuration,
		m.TargetsTotal,
		m.RecordsPersisted,
		m.CellsSkipped,
		m.ReadingsSkipped,
		m.FetchAttempts,
		m.SchedulerFirings,
		m.ReportPublishErrors,
		m.DedupLookups,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
