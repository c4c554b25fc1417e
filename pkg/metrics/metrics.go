package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	CratesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "criner_crates_total",
			Help: "Total number of distinct crates known to the ledger",
		},
	)

	CrateVersionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "criner_crate_versions_total",
			Help: "Total number of crate versions known to the ledger",
		},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "criner_tasks_total",
			Help: "Total number of tasks by process and state",
		},
		[]string{"process", "state"},
	)

	// Pipeline metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "criner_queue_depth",
			Help: "Number of requests currently buffered in a pipeline stage's queue",
		},
		[]string{"stage"},
	)

	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criner_tasks_processed_total",
			Help: "Total number of tasks processed by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	TaskAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criner_task_attempts_total",
			Help: "Total number of task attempts (including retries) by stage",
		},
		[]string{"stage"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "criner_task_duration_seconds",
			Help:    "Time taken to process one task by stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "criner_download_bytes_total",
			Help: "Total bytes downloaded across all crate archive fetches",
		},
	)

	// Scheduler metrics
	ScheduleCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "criner_schedule_cycle_duration_seconds",
			Help:    "Time taken for one scheduler sweep over the crate universe",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScheduleDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "criner_schedule_dispatched_total",
			Help: "Total number of download requests dispatched by the scheduler",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "criner_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "criner_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// Report metrics
	ReportsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "criner_reports_generated_total",
			Help: "Total number of waste reports generated",
		},
	)
)

func init() {
	prometheus.MustRegister(CratesTotal)
	prometheus.MustRegister(CrateVersionsTotal)
	prometheus.MustRegister(TasksTotal)

	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TasksProcessedTotal)
	prometheus.MustRegister(TaskAttemptsTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(DownloadBytesTotal)

	prometheus.MustRegister(ScheduleCycleDuration)
	prometheus.MustRegister(ScheduleDispatchedTotal)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)

	prometheus.MustRegister(ReportsGeneratedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
