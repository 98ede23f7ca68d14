package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/store"
)

func TestSubscribeFeedCreatesEverything(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)
	userUID := uuid.New()

	f, err := svc.SubscribeFeed(ctx, userUID, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}

	job, err := s.GetJobByFeedID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetJobByFeedID: %v", err)
	}
	if job.State != store.JobStatePending {
		t.Errorf("job state = %v, want pending", job.State)
	}
	if job.ExecuteAfter.After(time.Now()) {
		t.Errorf("execute_after = %v, want immediately due", job.ExecuteAfter)
	}

	if _, err := s.GetUserFeed(ctx, userUID, f.ID); err != nil {
		t.Errorf("follow link missing: %v", err)
	}
}

func TestSubscribeFeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)
	userUID := uuid.New()

	first, err := svc.SubscribeFeed(ctx, userUID, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}

	// Complete the job, then resubscribe: nothing may be reset.
	job, err := s.GetJobByFeedID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetJobByFeedID: %v", err)
	}
	if _, err := s.TransitJobState(ctx, job.ID, store.JobStatePending, store.JobStateInProgress); err != nil {
		t.Fatalf("TransitJobState: %v", err)
	}

	second, err := svc.SubscribeFeed(ctx, userUID, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("resubscription created feed %d, want %d", second.ID, first.ID)
	}

	job, err = s.GetJobByFeedID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetJobByFeedID: %v", err)
	}
	if job.State != store.JobStateInProgress {
		t.Errorf("resubscription disturbed the job: state = %v", job.State)
	}
}

func TestFollowUnfollow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)
	owner, follower := uuid.New(), uuid.New()

	f, err := svc.SubscribeFeed(ctx, owner, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}

	if err := svc.FollowFeed(ctx, follower, f.ID); err != nil {
		t.Fatalf("FollowFeed: %v", err)
	}
	feeds, err := svc.ListFeeds(ctx, follower, 10, 0)
	if err != nil {
		t.Fatalf("ListFeeds: %v", err)
	}
	if len(feeds) != 1 || feeds[0].ID != f.ID {
		t.Errorf("follower sees %d feeds", len(feeds))
	}

	if err := svc.FollowFeed(ctx, follower, 999); !errors.Is(err, store.ErrNoFeed) {
		t.Errorf("expected ErrNoFeed, got %v", err)
	}

	if err := svc.UnfollowFeed(ctx, follower, f.ID); err != nil {
		t.Fatalf("UnfollowFeed: %v", err)
	}
	// Unfollowing again is a silent no-op.
	if err := svc.UnfollowFeed(ctx, follower, f.ID); err != nil {
		t.Errorf("second UnfollowFeed: %v", err)
	}
	feeds, err = svc.ListFeeds(ctx, follower, 10, 0)
	if err != nil {
		t.Fatalf("ListFeeds: %v", err)
	}
	if len(feeds) != 0 {
		t.Errorf("follower still sees %d feeds", len(feeds))
	}
}

func TestRefreshFeed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)
	userUID := uuid.New()

	f, err := svc.SubscribeFeed(ctx, userUID, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}
	job, err := s.GetJobByFeedID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetJobByFeedID: %v", err)
	}

	// Pending: refresh is a no-op.
	if err := svc.RefreshFeed(ctx, f.ID); err != nil {
		t.Fatalf("RefreshFeed(pending): %v", err)
	}

	// Park the job as failed with retry debt, then force a refresh.
	if _, err := s.TransitJobState(ctx, job.ID, store.JobStatePending, store.JobStateInProgress); err != nil {
		t.Fatalf("TransitJobState: %v", err)
	}
	if _, err := s.TransitJobState(ctx, job.ID, store.JobStateInProgress, store.JobStateFailed); err != nil {
		t.Fatalf("TransitJobState: %v", err)
	}
	retries := 3
	future := time.Now().Add(time.Hour)
	if _, err := s.UpdateJob(ctx, job.ID, store.JobUpdates{Retries: &retries, ExecuteAfter: &future}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	if err := svc.RefreshFeed(ctx, f.ID); err != nil {
		t.Fatalf("RefreshFeed(failed): %v", err)
	}

	got, err := s.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.State != store.JobStatePending {
		t.Errorf("state = %v, want pending", got.State)
	}
	if got.Retries != 0 {
		t.Errorf("retries = %d, want 0 after forced refresh", got.Retries)
	}
	if got.ExecuteAfter.After(time.Now()) {
		t.Errorf("execute_after = %v, want immediately due", got.ExecuteAfter)
	}

	if err := svc.RefreshFeed(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown feed, got %v", err)
	}
}

func TestReadUnreadPost(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)
	userUID := uuid.New()

	f, err := svc.SubscribeFeed(ctx, userUID, "https://blog.example.com/rss")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}
	posts, err := s.CreatePosts(ctx, []store.NewFeedPost{
		{FeedID: f.ID, Title: "one", URL: "https://blog.example.com/1", GUID: "g1", PublishedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("CreatePosts: %v", err)
	}
	postID := posts[0].ID

	if err := svc.ReadPost(ctx, userUID, postID); err != nil {
		t.Fatalf("ReadPost: %v", err)
	}
	if err := svc.ReadPost(ctx, userUID, postID); err != nil {
		t.Errorf("second ReadPost: %v", err)
	}
	if err := svc.ReadPost(ctx, userUID, 999); !errors.Is(err, store.ErrNoPost) {
		t.Errorf("expected ErrNoPost, got %v", err)
	}

	listed, err := svc.ListPosts(ctx, store.FeedPostFiltering{ReadBy: &userUID}, 10, 0)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("read posts = %d, want 1", len(listed))
	}

	if err := svc.UnreadPost(ctx, userUID, postID); err != nil {
		t.Fatalf("UnreadPost: %v", err)
	}
	if err := svc.UnreadPost(ctx, userUID, postID); err != nil {
		t.Errorf("second UnreadPost: %v", err)
	}
}

func TestGetJobStatus(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)

	if _, err := svc.SubscribeFeed(ctx, uuid.New(), "https://blog.example.com/rss"); err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}

	status, err := svc.GetJobStatus(ctx)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if status.Counts["pending"] != 1 {
		t.Errorf("counts = %v, want one pending job", status.Counts)
	}
}
