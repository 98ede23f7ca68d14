package observability

import (
	"context"
	"log"
	"time"

	"github.com/itskum47/FeedForge/store"
)

// PollJobStates refreshes the per-state job gauge from the database at the
// given interval until ctx is canceled. The scheduler and worker binaries
// run it so each exports current queue depths.
func PollJobStates(ctx context.Context, jobs store.FeedRefreshJobRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := jobs.CountJobsByState(ctx)
			if err != nil {
				log.Printf("observability: counting jobs: %v", err)
				continue
			}
			for _, state := range []store.JobState{
				store.JobStatePending,
				store.JobStateInProgress,
				store.JobStateComplete,
				store.JobStateFailed,
			} {
				JobsByState.WithLabelValues(state.String()).Set(float64(counts[state]))
			}
		}
	}
}
