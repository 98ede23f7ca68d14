// Package api exposes the HTTP surface: subscription and follow management,
// post listings, forced refreshes, token minting and the pipeline status
// stream. Handlers stay thin; use-case logic lives in Service.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/store"
)

// Store is the slice of the storage layer the API depends on.
type Store interface {
	store.Atomic
	store.FeedRepository
	store.FeedPostRepository
	store.FeedRefreshJobRepository
	store.UserFeedRepository
	store.UserPostRepository
}

// Service implements the API use cases over the repositories.
type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// SubscribeFeed registers a feed URL for the user: the feed row, its
// refresh job and the follow link are created in one transaction, each with
// get-or-create semantics so resubscribing is a no-op.
func (s *Service) SubscribeFeed(ctx context.Context, userUID uuid.UUID, url string) (*store.Feed, error) {
	var f *store.Feed
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		f, err = s.store.GetOrCreateFeed(ctx, store.NewFeed{URL: url})
		if err != nil {
			return err
		}

		if _, err = s.store.GetOrCreateJob(ctx, store.NewFeedRefreshJob{
			FeedID:       f.ID,
			State:        store.JobStatePending,
			ExecuteAfter: time.Now(),
		}); err != nil {
			return err
		}

		_, err = s.store.GetOrCreateUserFeed(ctx, store.NewUserFeed{
			UserUID: userUID,
			FeedID:  f.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFeeds returns the feeds the user follows, newest publication first.
func (s *Service) ListFeeds(ctx context.Context, userUID uuid.UUID, limit, offset int) ([]*store.Feed, error) {
	return s.store.ListFeeds(ctx, store.FeedFiltering{FollowedBy: &userUID},
		store.FeedOrderingPublishedAtDesc, limit, offset)
}

// FollowFeed links the user to an existing feed. Following twice is a no-op.
func (s *Service) FollowFeed(ctx context.Context, userUID uuid.UUID, feedID int64) error {
	_, err := s.store.GetOrCreateUserFeed(ctx, store.NewUserFeed{
		UserUID: userUID,
		FeedID:  feedID,
	})
	return err
}

// UnfollowFeed removes the follow link. Unfollowing a feed the user never
// followed succeeds silently.
func (s *Service) UnfollowFeed(ctx context.Context, userUID uuid.UUID, feedID int64) error {
	link, err := s.store.GetUserFeed(ctx, userUID, feedID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.store.DeleteUserFeed(ctx, link.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// RefreshFeed forces the feed's job back into the queue. A job already
// pending or in_progress is left alone; a complete or failed job moves to
// pending with its backoff cleared so the worker picks it up immediately.
func (s *Service) RefreshFeed(ctx context.Context, feedID int64) error {
	job, err := s.store.GetJobByFeedID(ctx, feedID)
	if err != nil {
		return err
	}
	if job.State == store.JobStatePending || job.State == store.JobStateInProgress {
		return nil
	}

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.store.TransitJobState(ctx, job.ID, job.State, store.JobStatePending)
		if errors.Is(err, store.ErrStateTransitionFailed) {
			// The job moved under us; whoever moved it owns it now.
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		retries := 0
		_, err = s.store.UpdateJob(ctx, job.ID, store.JobUpdates{
			ExecuteAfter: &now,
			Retries:      &retries,
		})
		return err
	})
}

// ListPosts returns posts matching the filter, newest first.
func (s *Service) ListPosts(ctx context.Context, filter store.FeedPostFiltering, limit, offset int) ([]*store.FeedPost, error) {
	return s.store.ListPosts(ctx, filter, store.FeedPostOrderingPublishedAtDesc, limit, offset)
}

// ReadPost marks a post read for the user. Marking twice is a no-op.
func (s *Service) ReadPost(ctx context.Context, userUID uuid.UUID, postID int64) error {
	_, err := s.store.GetOrCreateUserPost(ctx, store.NewUserPost{
		UserUID: userUID,
		PostID:  postID,
		ReadAt:  time.Now(),
	})
	return err
}

// UnreadPost clears the read mark. Clearing an absent mark succeeds.
func (s *Service) UnreadPost(ctx context.Context, userUID uuid.UUID, postID int64) error {
	mark, err := s.store.GetUserPost(ctx, userUID, postID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.store.DeleteUserPost(ctx, mark.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// JobStatus reports the number of jobs in each state plus a timestamp, the
// payload broadcast on the status stream and served by the status endpoint.
type JobStatus struct {
	Counts     map[string]int `json:"counts"`
	ObservedAt time.Time      `json:"observed_at"`
}

// GetJobStatus snapshots the pipeline state counters.
func (s *Service) GetJobStatus(ctx context.Context) (*JobStatus, error) {
	counts, err := s.store.CountJobsByState(ctx)
	if err != nil {
		return nil, err
	}
	status := &JobStatus{
		Counts:     make(map[string]int, len(counts)),
		ObservedAt: time.Now(),
	}
	for state, n := range counts {
		status.Counts[state.String()] = n
	}
	return status, nil
}
