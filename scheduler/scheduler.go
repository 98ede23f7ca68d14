// Package scheduler promotes stale completed refresh jobs back to pending.
// It is the only path by which a successful job becomes runnable again, so
// its tick cadence and threshold define the feed refresh frequency.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/itskum47/FeedForge/observability"
	"github.com/itskum47/FeedForge/store"
)

// Scheduler runs a tick loop over the job repository. Several instances
// may run against the same database: the batch CAS guarantees each row is
// promoted exactly once, so a competing instance merely observes a smaller
// updated set.
type Scheduler struct {
	jobs store.FeedRefreshJobRepository

	interval        time.Duration
	refreshInterval time.Duration
	batchSize       int
}

// New creates a Scheduler. refreshInterval is the minimum time a job stays
// in complete before being re-queued; batchSize caps promotions per tick.
func New(jobs store.FeedRefreshJobRepository, interval, refreshInterval time.Duration, batchSize int) *Scheduler {
	return &Scheduler{
		jobs:            jobs,
		interval:        interval,
		refreshInterval: refreshInterval,
		batchSize:       batchSize,
	}
}

// Run executes ticks at the configured interval until ctx is canceled.
// The current tick always completes before Run returns; each repository
// call is transactional, so cancellation never leaves partial work.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: running with interval=%s refresh_interval=%s batch_size=%d",
		s.interval, s.refreshInterval, s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: shutting down")
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.Tick(ctx); err != nil {
				// A failed tick is logged and swallowed; the next tick
				// starts from a clean slate.
				log.Printf("scheduler: tick failed: %v", err)
				observability.SchedulerTickErrors.Inc()
			}
			observability.SchedulerTickDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// Tick promotes at most batchSize jobs that completed longer than
// refreshInterval ago, oldest completion first.
func (s *Scheduler) Tick(ctx context.Context) error {
	threshold := time.Now().Add(-s.refreshInterval)
	state := store.JobStateComplete

	stale, err := s.jobs.ListJobs(ctx, store.JobFiltering{
		State:              &state,
		StateChangedBefore: &threshold,
	}, store.JobOrderingStateChangedAtAsc, s.batchSize, 0)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		log.Printf("scheduler: no jobs to schedule")
		return nil
	}

	ids := make([]int64, len(stale))
	for i, job := range stale {
		ids[i] = job.ID
	}

	scheduled, err := s.jobs.TransitJobStateBatch(ctx, ids, store.JobStateComplete, store.JobStatePending)
	if err != nil {
		return err
	}

	// Rows missing from the result were promoted by a competing scheduler
	// instance between the listing and the CAS. Benign.
	if lost := len(stale) - len(scheduled); lost > 0 {
		log.Printf("scheduler: %d of %d jobs were scheduled elsewhere", lost, len(stale))
		observability.SchedulerRaceLost.Add(float64(lost))
	}

	log.Printf("scheduler: scheduled %d jobs for refresh", len(scheduled))
	observability.SchedulerJobsScheduled.Add(float64(len(scheduled)))
	return nil
}
