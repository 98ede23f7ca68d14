package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/FeedForge/store"
)

func newCompleteJob(t *testing.T, s *store.Memory, url string) *store.FeedRefreshJob {
	t.Helper()
	ctx := context.Background()

	f, err := s.GetOrCreateFeed(ctx, store.NewFeed{URL: url})
	if err != nil {
		t.Fatalf("GetOrCreateFeed: %v", err)
	}
	j, err := s.GetOrCreateJob(ctx, store.NewFeedRefreshJob{
		FeedID:       f.ID,
		State:        store.JobStateComplete,
		ExecuteAfter: time.Now(),
	})
	if err != nil {
		t.Fatalf("GetOrCreateJob: %v", err)
	}
	return j
}

func TestTickPromotesStaleCompleteJobs(t *testing.T) {
	s := store.NewMemory()
	j := newCompleteJob(t, s, "https://a.example/rss")

	// A zero refresh interval makes every completed job immediately stale.
	sched := New(s, time.Second, 0, 20)
	time.Sleep(time.Millisecond)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := s.GetJobByID(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.State != store.JobStatePending {
		t.Errorf("state = %v, want pending", got.State)
	}
}

func TestTickRespectsRefreshInterval(t *testing.T) {
	s := store.NewMemory()
	j := newCompleteJob(t, s, "https://a.example/rss")

	sched := New(s, time.Second, time.Hour, 20)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := s.GetJobByID(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.State != store.JobStateComplete {
		t.Errorf("recently completed job was rescheduled: state = %v", got.State)
	}
}

func TestTickOldestCompletionsFirst(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	first := newCompleteJob(t, s, "https://a.example/rss")
	time.Sleep(2 * time.Millisecond)
	second := newCompleteJob(t, s, "https://b.example/rss")
	time.Sleep(2 * time.Millisecond)
	third := newCompleteJob(t, s, "https://c.example/rss")

	// Batch of two: the two oldest completions go first.
	sched := New(s, time.Second, 0, 2)
	time.Sleep(time.Millisecond)
	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	for _, tc := range []struct {
		job  *store.FeedRefreshJob
		want store.JobState
	}{
		{first, store.JobStatePending},
		{second, store.JobStatePending},
		{third, store.JobStateComplete},
	} {
		got, err := s.GetJobByID(ctx, tc.job.ID)
		if err != nil {
			t.Fatalf("GetJobByID: %v", err)
		}
		if got.State != tc.want {
			t.Errorf("job %d state = %v, want %v", tc.job.ID, got.State, tc.want)
		}
	}
}

func TestTickIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	j := newCompleteJob(t, s, "https://a.example/rss")

	sched := New(s, time.Second, 0, 20)
	time.Sleep(time.Millisecond)
	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	// The job is now pending; a second tick must not touch it.
	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	got, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.State != store.JobStatePending {
		t.Errorf("state = %v, want pending after double tick", got.State)
	}
}

func TestTickIgnoresOtherStates(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	f, err := s.GetOrCreateFeed(ctx, store.NewFeed{URL: "https://a.example/rss"})
	if err != nil {
		t.Fatalf("GetOrCreateFeed: %v", err)
	}
	j, err := s.GetOrCreateJob(ctx, store.NewFeedRefreshJob{
		FeedID: f.ID, State: store.JobStateFailed, ExecuteAfter: time.Now(),
	})
	if err != nil {
		t.Fatalf("GetOrCreateJob: %v", err)
	}

	sched := New(s, time.Second, 0, 20)
	time.Sleep(time.Millisecond)
	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.State != store.JobStateFailed {
		t.Errorf("failed job was rescheduled: state = %v", got.State)
	}
}
