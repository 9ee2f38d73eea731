package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API ─────────────────────────────────────────────────────────────────────

	APIJobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "api",
		Name:      "jobs_submitted_total",
		Help:      "Total jobs submitted through the API, labelled by kind.",
	}, []string{"kind"})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Total submissions rejected by the per-owner rate limiter.",
	})

	// ─── Job runner ──────────────────────────────────────────────────────────────

	JobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aaronos",
		Subsystem: "runner",
		Name:      "jobs_inflight",
		Help:      "Jobs currently executing, labelled by kind.",
	}, []string{"kind"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "runner",
		Name:      "jobs_finished_total",
		Help:      "Total jobs finished, labelled by kind and terminal status.",
	}, []string{"kind", "status"})

	JobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aaronos",
		Subsystem: "runner",
		Name:      "job_duration_seconds",
		Help:      "End-to-end job execution time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	StepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aaronos",
		Subsystem: "runner",
		Name:      "step_duration_seconds",
		Help:      "Pipeline step execution time in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"kind", "step"})

	// ─── Generation ──────────────────────────────────────────────────────────────

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total generation requests, labelled by outcome.",
	}, []string{"outcome"})

	LLMTokensUsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "llm",
		Name:      "tokens_used_total",
		Help:      "Total tokens consumed by generation calls.",
	})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Total scheduled task runs, labelled by task and outcome.",
	}, []string{"task", "outcome"})

	SchedulerSkippedOverlaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aaronos",
		Subsystem: "scheduler",
		Name:      "skipped_overlaps_total",
		Help:      "Trigger firings skipped because a run was still in progress.",
	}, []string{"task"})

	SchedulerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aaronos",
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Scheduled task run time in seconds.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task"})
)
