/*
Package metrics provides Prometheus metrics collection and exposition for
the miner. Metrics are registered at package init and exposed over
/metrics for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Ledger: crates, crate_versions, tasks      │          │
	│  │  Pipeline: queue depth, throughput, bytes   │          │
	│  │  Scheduler: cycle duration, dispatch count  │          │
	│  │  Reconciler: cycle duration, count          │          │
	│  │  Report: reports generated                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

criner_crates_total / criner_crate_versions_total:
  - Type: Gauge
  - Sampled periodically by Collector from the ledger.

criner_tasks_total{process, state}:
  - Type: Gauge
  - Task counts by process ("download"/"extract"/"waste") and TaskStateKind.

criner_queue_depth{stage}:
  - Type: Gauge
  - Number of requests buffered in a pipeline stage's channel.

criner_tasks_processed_total{stage, outcome}:
  - Type: Counter
  - Terminal task outcomes ("complete"/"failed") per stage.

criner_task_attempts_total{stage}:
  - Type: Counter
  - Every attempt a worker makes, including retries.

criner_task_duration_seconds{stage}:
  - Type: Histogram
  - Wall time for one task attempt.

criner_download_bytes_total:
  - Type: Counter
  - Cumulative bytes written to disk by the download stage.

criner_schedule_cycle_duration_seconds / criner_schedule_dispatched_total:
  - Histogram / Counter for the scheduler's per-sweep cost and output.

criner_reconciliation_duration_seconds / criner_reconciliation_cycles_total:
  - Histogram / Counter for the reconciler's per-cycle cost.

criner_reports_generated_total:
  - Type: Counter
  - Waste reports written to disk.

# Usage

	import "github.com/criner-dev/criner/pkg/metrics"

	timer := metrics.NewTimer()
	// ... perform work ...
	timer.ObserveDuration(metrics.ScheduleCycleDuration)

	metrics.TaskAttemptsTotal.WithLabelValues("download").Inc()
	metrics.QueueDepth.WithLabelValues("extract").Set(float64(len(queue)))

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate
    registration, which catches a copy/paste mistake at startup instead
    of silently dropping a metric.

Label Discipline:
  - Labels are bounded (process name, stage name, state kind) — never
    crate name or version, which are unbounded and belong in logs.
*/
package metrics
