// Package worker executes pending feed refresh jobs. Each tick claims a
// batch of due jobs, downloads the corresponding feeds concurrently, and
// settles every claimed job as complete, retried or failed. A job claimed
// by this worker is owned by it until it leaves in_progress; other workers
// cannot claim it because the claim itself is a state CAS.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/feed"
	"github.com/itskum47/FeedForge/observability"
	"github.com/itskum47/FeedForge/store"
)

// Store is the slice of the storage layer the worker depends on.
type Store interface {
	store.Atomic
	store.FeedRepository
	store.FeedPostRepository
	store.FeedRefreshJobRepository
}

// ContentFetcher downloads and parses a batch of feeds.
type ContentFetcher interface {
	FetchMany(ctx context.Context, batch feed.BatchRequest) *feed.BatchResult
}

// Worker drains the pending job queue. retryDelays is the backoff table
// indexed by the job's retry count; its length is the retry cap.
type Worker struct {
	store   Store
	fetcher ContentFetcher

	interval     time.Duration
	batchSize    int
	fetchTimeout time.Duration
	retryDelays  []time.Duration
}

func New(s Store, fetcher ContentFetcher, interval time.Duration, batchSize int, fetchTimeout time.Duration, retryDelays []time.Duration) *Worker {
	return &Worker{
		store:        s,
		fetcher:      fetcher,
		interval:     interval,
		batchSize:    batchSize,
		fetchTimeout: fetchTimeout,
		retryDelays:  retryDelays,
	}
}

// Run executes ticks at the configured interval until ctx is canceled.
// The tick in flight finishes before Run returns so that claimed jobs are
// settled rather than left in_progress for the reclaimer.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("worker: running with interval=%s batch_size=%d fetch_timeout=%s max_retries=%d",
		w.interval, w.batchSize, w.fetchTimeout, len(w.retryDelays))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker: shutting down")
			return
		case <-ticker.C:
			start := time.Now()
			if err := w.Tick(context.WithoutCancel(ctx)); err != nil {
				log.Printf("worker: tick failed: %v", err)
			}
			observability.WorkerTickDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// Tick claims one batch of due jobs and settles each of them. Per-job
// failures never fail the tick; an error here means the batch could not be
// listed or claimed at all.
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.claim(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Printf("worker: no jobs to execute")
		return nil
	}
	log.Printf("worker: claimed %d jobs", len(jobs))
	observability.WorkerJobsClaimed.Add(float64(len(jobs)))

	feeds, err := w.resolveFeeds(ctx, jobs)
	if err != nil {
		// The claimed jobs stay in_progress and will be recovered by the
		// reclaimer; losing them here would need per-job rollbacks for a
		// failure that is almost certainly a dead database.
		return err
	}

	// One request per claimed job, keyed by a fresh request ID so two jobs
	// pointing at the same URL cannot collide in the result maps.
	requests := make(map[uuid.UUID]feed.ContentRequest, len(jobs))
	jobsByRequest := make(map[uuid.UUID]*store.FeedRefreshJob, len(jobs))
	for _, job := range jobs {
		f, ok := feeds[job.FeedID]
		if !ok {
			// Feed rows are never deleted, so a missing row means a corrupt
			// reference. Park the job as failed instead of retrying forever.
			log.Printf("worker: job %d references missing feed %d, failing it", job.ID, job.FeedID)
			if _, err := w.store.TransitJobState(ctx, job.ID, store.JobStateInProgress, store.JobStateFailed); err != nil {
				log.Printf("worker: failing job %d: %v", job.ID, err)
			}
			observability.WorkerJobOutcomes.WithLabelValues("error").Inc()
			continue
		}
		requestID := uuid.New()
		requests[requestID] = feed.ContentRequest{URL: f.URL, PublishedSince: f.PublishedAt}
		jobsByRequest[requestID] = job
	}

	result := w.fetcher.FetchMany(ctx, feed.BatchRequest{
		Timeout:  w.fetchTimeout,
		Requests: requests,
	})

	var wg sync.WaitGroup
	for requestID, job := range jobsByRequest {
		wg.Add(1)
		go func(requestID uuid.UUID, job *store.FeedRefreshJob) {
			defer wg.Done()
			defer func() {
				// A panicking handler must not take down the batch; the job
				// stays in_progress for the reclaimer.
				if r := recover(); r != nil {
					log.Printf("worker: handler for job %d panicked: %v", job.ID, r)
					observability.WorkerJobOutcomes.WithLabelValues("error").Inc()
				}
			}()
			if content, ok := result.Results[requestID]; ok {
				w.completeJob(ctx, job, content)
				return
			}
			w.retryOrFailJob(ctx, job, result.Errors[requestID])
		}(requestID, job)
	}
	wg.Wait()

	return nil
}

// claim lists due pending jobs and CAS-claims them into in_progress. Only
// the rows actually updated are returned; the rest were claimed by a
// competing worker between the listing and the CAS.
func (w *Worker) claim(ctx context.Context) ([]*store.FeedRefreshJob, error) {
	now := time.Now()
	state := store.JobStatePending

	// Oldest waiters first, ties by id for fair FIFO.
	due, err := w.store.ListJobs(ctx, store.JobFiltering{
		State:         &state,
		ExecuteBefore: &now,
	}, store.JobOrderingStateChangedAtAsc, w.batchSize, 0)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(due))
	for i, job := range due {
		ids[i] = job.ID
	}
	return w.store.TransitJobStateBatch(ctx, ids, store.JobStatePending, store.JobStateInProgress)
}

func (w *Worker) resolveFeeds(ctx context.Context, jobs []*store.FeedRefreshJob) (map[int64]*store.Feed, error) {
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.FeedID
	}

	feeds, err := w.store.ListFeeds(ctx, store.FeedFiltering{IDs: ids}, store.FeedOrderingIDAsc, len(ids), 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*store.Feed, len(feeds))
	for _, f := range feeds {
		byID[f.ID] = f
	}
	return byID, nil
}

// completeJob persists a successful refresh in one transaction: the job
// moves to complete with its retry counter cleared, the feed record absorbs
// the fresh title and watermark, and new posts are inserted. Duplicate
// posts are dropped by the (feed_id, guid) constraint rather than failing
// the batch.
func (w *Worker) completeJob(ctx context.Context, job *store.FeedRefreshJob, content *feed.ContentResult) {
	var inserted int
	err := w.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := w.store.TransitJobState(ctx, job.ID, store.JobStateInProgress, store.JobStateComplete); err != nil {
			return err
		}

		retries := 0
		if _, err := w.store.UpdateJob(ctx, job.ID, store.JobUpdates{Retries: &retries}); err != nil {
			return err
		}

		// An empty result leaves the feed record untouched; only the state
		// change and the retry reset are committed.
		if len(content.Items) == 0 {
			return nil
		}

		if _, err := w.store.UpdateFeed(ctx, job.FeedID, store.FeedUpdates{
			Title:       &content.Title,
			PublishedAt: content.PublishedAt,
		}); err != nil {
			return err
		}
		posts := make([]store.NewFeedPost, len(content.Items))
		for i, item := range content.Items {
			posts[i] = store.NewFeedPost{
				FeedID:      job.FeedID,
				Title:       item.Title,
				Summary:     item.Summary,
				URL:         item.URL,
				GUID:        item.GUID,
				PublishedAt: item.PublishedAt,
			}
		}
		created, err := w.store.CreatePosts(ctx, posts)
		if err != nil {
			return err
		}
		inserted = len(created)
		return nil
	})
	if err != nil {
		log.Printf("worker: completing job %d: %v", job.ID, err)
		observability.WorkerJobOutcomes.WithLabelValues("error").Inc()
		return
	}

	log.Printf("worker: job %d complete, %d new posts", job.ID, inserted)
	observability.WorkerJobOutcomes.WithLabelValues("complete").Inc()
	observability.WorkerPostsIngested.Add(float64(inserted))
}

// retryOrFailJob settles a failed refresh. While the retry counter indexes
// into the backoff table the job goes back to pending with a delayed
// execute_after; once the table is exhausted the job is parked as failed
// until an operator or an explicit refresh request revives it.
func (w *Worker) retryOrFailJob(ctx context.Context, job *store.FeedRefreshJob, cause error) {
	if job.Retries >= len(w.retryDelays) {
		if _, err := w.store.TransitJobState(ctx, job.ID, store.JobStateInProgress, store.JobStateFailed); err != nil {
			log.Printf("worker: failing job %d: %v", job.ID, err)
			observability.WorkerJobOutcomes.WithLabelValues("error").Inc()
			return
		}
		log.Printf("worker: job %d failed permanently after %d retries: %v", job.ID, job.Retries, cause)
		observability.WorkerJobOutcomes.WithLabelValues("exhausted").Inc()
		return
	}

	delay := w.retryDelays[job.Retries]
	err := w.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := w.store.TransitJobState(ctx, job.ID, store.JobStateInProgress, store.JobStatePending); err != nil {
			return err
		}
		retries := job.Retries + 1
		executeAfter := time.Now().Add(delay)
		_, err := w.store.UpdateJob(ctx, job.ID, store.JobUpdates{
			ExecuteAfter: &executeAfter,
			Retries:      &retries,
		})
		return err
	})
	if err != nil {
		log.Printf("worker: retrying job %d: %v", job.ID, err)
		observability.WorkerJobOutcomes.WithLabelValues("error").Inc()
		return
	}

	log.Printf("worker: job %d scheduled for retry %d in %s: %v", job.ID, job.Retries+1, delay, cause)
	observability.WorkerJobOutcomes.WithLabelValues("retried").Inc()
}
