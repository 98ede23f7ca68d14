package store

import (
	"context"

	"github.com/google/uuid"
)

// Atomic scopes a group of repository calls into one transaction.
// The callback runs with a transaction bound to its context; every
// repository call made with that context joins the transaction. The
// transaction commits when the callback returns nil and rolls back on any
// error or panic. Nested calls join the outer transaction.
type Atomic interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// FeedRepository is the gateway to feed rows. Feeds are created on first
// subscription and never deleted by the pipeline.
type FeedRepository interface {
	GetFeedByID(ctx context.Context, id int64) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	GetOrCreateFeed(ctx context.Context, nf NewFeed) (*Feed, error)
	ListFeeds(ctx context.Context, filter FeedFiltering, order FeedOrdering, limit, offset int) ([]*Feed, error)
	UpdateFeed(ctx context.Context, id int64, updates FeedUpdates) (*Feed, error)
}

// FeedPostRepository is the gateway to ingested posts.
type FeedPostRepository interface {
	GetPostByID(ctx context.Context, id int64) (*FeedPost, error)
	// CreatePosts bulk-inserts posts, silently dropping rows that conflict
	// on (feed_id, guid). It returns the rows actually inserted.
	CreatePosts(ctx context.Context, posts []NewFeedPost) ([]*FeedPost, error)
	ListPosts(ctx context.Context, filter FeedPostFiltering, order FeedPostOrdering, limit, offset int) ([]*FeedPost, error)
}

// FeedRefreshJobRepository is the sole gateway to job state. It enforces
// the state machine: every transition is a compare-and-swap on
// (id, current_state), and state_changed_at is updated iff the state
// column changes.
type FeedRefreshJobRepository interface {
	GetJobByID(ctx context.Context, id int64) (*FeedRefreshJob, error)
	GetJobByFeedID(ctx context.Context, feedID int64) (*FeedRefreshJob, error)
	GetOrCreateJob(ctx context.Context, nj NewFeedRefreshJob) (*FeedRefreshJob, error)
	ListJobs(ctx context.Context, filter JobFiltering, order JobOrdering, limit, offset int) ([]*FeedRefreshJob, error)
	// UpdateJob mutates execute_after and/or retries. It never touches state.
	UpdateJob(ctx context.Context, id int64, updates JobUpdates) (*FeedRefreshJob, error)
	// TransitJobState moves one job old -> new. The target row is locked
	// before the CAS so that state_changed_at is updated atomically with
	// the state observation. A CAS mismatch returns
	// ErrStateTransitionFailed, including when the row is already in the
	// target state.
	TransitJobState(ctx context.Context, id int64, old, new JobState) (*FeedRefreshJob, error)
	// TransitJobStateBatch moves every job in ids whose state equals old to
	// new, returning only the rows actually updated. Partial success is
	// normal; callers must treat the returned subset as authoritative.
	TransitJobStateBatch(ctx context.Context, ids []int64, old, new JobState) ([]*FeedRefreshJob, error)
	// CountJobsByState reports the number of jobs in each state. Used by
	// the pipeline status surfaces.
	CountJobsByState(ctx context.Context) (map[JobState]int, error)
}

// UserFeedRepository is the gateway to follow links.
type UserFeedRepository interface {
	GetOrCreateUserFeed(ctx context.Context, nuf NewUserFeed) (*UserFeed, error)
	GetUserFeed(ctx context.Context, userUID uuid.UUID, feedID int64) (*UserFeed, error)
	DeleteUserFeed(ctx context.Context, id int64) error
}

// UserPostRepository is the gateway to per-user read state.
type UserPostRepository interface {
	GetOrCreateUserPost(ctx context.Context, nup NewUserPost) (*UserPost, error)
	GetUserPost(ctx context.Context, userUID uuid.UUID, postID int64) (*UserPost, error)
	DeleteUserPost(ctx context.Context, id int64) error
}
