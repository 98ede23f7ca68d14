package worker

import (
	"context"
	"log"
	"time"

	"github.com/itskum47/FeedForge/observability"
	"github.com/itskum47/FeedForge/store"
)

// Reclaimer returns orphaned jobs to the queue. A job stuck in in_progress
// longer than the threshold belongs to a worker that died mid-batch; the
// CAS back to pending is safe because a live owner would have moved the job
// out of in_progress long before the threshold.
type Reclaimer struct {
	jobs store.FeedRefreshJobRepository

	interval  time.Duration
	threshold time.Duration
	batchSize int
}

func NewReclaimer(jobs store.FeedRefreshJobRepository, interval, threshold time.Duration, batchSize int) *Reclaimer {
	return &Reclaimer{
		jobs:      jobs,
		interval:  interval,
		threshold: threshold,
		batchSize: batchSize,
	}
}

// Run executes reclaim passes at the configured interval until ctx is
// canceled. A zero threshold disables the reclaimer entirely.
func (r *Reclaimer) Run(ctx context.Context) {
	if r.threshold <= 0 {
		log.Printf("reclaimer: disabled")
		return
	}
	log.Printf("reclaimer: running with interval=%s threshold=%s", r.interval, r.threshold)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("reclaimer: shutting down")
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				log.Printf("reclaimer: tick failed: %v", err)
			}
		}
	}
}

// Tick promotes in_progress jobs older than the threshold back to pending,
// oldest first. Retry counters are left as-is; a reclaimed job resumes the
// backoff sequence where its dead owner left it.
func (r *Reclaimer) Tick(ctx context.Context) error {
	cutoff := time.Now().Add(-r.threshold)
	state := store.JobStateInProgress

	orphaned, err := r.jobs.ListJobs(ctx, store.JobFiltering{
		State:              &state,
		StateChangedBefore: &cutoff,
	}, store.JobOrderingStateChangedAtAsc, r.batchSize, 0)
	if err != nil {
		return err
	}
	if len(orphaned) == 0 {
		return nil
	}

	ids := make([]int64, len(orphaned))
	for i, job := range orphaned {
		ids[i] = job.ID
	}

	reclaimed, err := r.jobs.TransitJobStateBatch(ctx, ids, store.JobStateInProgress, store.JobStatePending)
	if err != nil {
		return err
	}

	log.Printf("reclaimer: returned %d orphaned jobs to the queue", len(reclaimed))
	observability.WorkerJobsReclaimed.Add(float64(len(reclaimed)))
	return nil
}
