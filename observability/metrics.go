package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTickDuration tracks the duration of scheduler ticks.
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedforge_scheduler_tick_duration_seconds",
		Help:    "Duration of a scheduler tick",
		Buckets: prometheus.DefBuckets,
	})

	// SchedulerJobsScheduled tracks jobs promoted from complete to pending.
	SchedulerJobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_scheduler_jobs_scheduled_total",
		Help: "Jobs promoted from complete back to pending",
	})

	// SchedulerTickErrors tracks scheduler ticks that failed and were skipped.
	SchedulerTickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_scheduler_tick_errors_total",
		Help: "Scheduler ticks aborted by an error",
	})

	// SchedulerRaceLost tracks rows another scheduler instance promoted first.
	SchedulerRaceLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_scheduler_race_lost_total",
		Help: "Jobs selected for scheduling but promoted by a competing instance",
	})

	// WorkerTickDuration tracks the duration of worker ticks.
	WorkerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedforge_worker_tick_duration_seconds",
		Help:    "Duration of a worker tick, including fetching",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// WorkerJobsClaimed tracks jobs claimed into in_progress.
	WorkerJobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_worker_jobs_claimed_total",
		Help: "Jobs claimed from pending into in_progress",
	})

	// WorkerJobOutcomes tracks per-job handler outcomes.
	// outcome: complete, retried, exhausted, error
	WorkerJobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedforge_worker_job_outcomes_total",
		Help: "Outcomes of per-job handlers",
	}, []string{"outcome"})

	// WorkerPostsIngested tracks posts persisted by successful refreshes.
	WorkerPostsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_worker_posts_ingested_total",
		Help: "Feed posts inserted by the worker",
	})

	// WorkerJobsReclaimed tracks orphaned in_progress jobs reset to pending.
	WorkerJobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_worker_jobs_reclaimed_total",
		Help: "Orphaned in_progress jobs promoted back to pending",
	})

	// FetchDuration tracks the wall-clock time of individual feed downloads.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedforge_fetch_duration_seconds",
		Help:    "Duration of individual feed downloads",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// FetchFailures tracks failed fetches by reason.
	// reason: transport, status, too_large, parse
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedforge_fetch_failures_total",
		Help: "Feed fetches that did not produce a parsed result",
	}, []string{"reason"})

	// JobsByState reports the current number of jobs in each state, polled
	// periodically from the database.
	JobsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedforge_jobs_by_state",
		Help: "Current number of refresh jobs per state",
	}, []string{"state"})

	// APIRateLimited tracks API requests rejected by the per-user limiter.
	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedforge_api_rate_limited_total",
		Help: "API requests rejected by rate limiter",
	}, []string{"endpoint"})

	// IdempotencyHits tracks mutating API requests answered from the
	// idempotency cache.
	IdempotencyHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedforge_idempotency_hits_total",
		Help: "Requests served from the idempotency cache",
	})

	// StreamClients tracks currently connected pipeline-status WebSocket
	// clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedforge_stream_clients",
		Help: "Connected pipeline status stream clients",
	})
)
