package store

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a feed refresh job. The integer
// encoding is persisted as-is and consumed by external schedulers and
// scripts, so the values must never be renumbered.
type JobState int

const (
	JobStatePending    JobState = 1
	JobStateInProgress JobState = 2
	JobStateComplete   JobState = 3
	JobStateFailed     JobState = 4
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateInProgress:
		return "in_progress"
	case JobStateComplete:
		return "complete"
	case JobStateFailed:
		return "failed"
	}
	return "unknown"
}

// Feed is a remote RSS/Atom document tracked by the service.
// PublishedAt is the high-water mark of the newest post observed in the
// feed; the worker uses it to filter re-served items on later refreshes.
type Feed struct {
	ID          int64      `json:"id" db:"id"`
	URL         string     `json:"url" db:"url"`
	Title       *string    `json:"title" db:"title"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// NewFeed holds the fields needed to register a feed.
type NewFeed struct {
	URL         string
	Title       *string
	PublishedAt *time.Time
}

// FeedUpdates carries optional mutations applied by Update. Nil fields
// are left untouched.
type FeedUpdates struct {
	Title       *string
	PublishedAt *time.Time
}

// FeedFiltering narrows List results. Zero-value fields are ignored.
type FeedFiltering struct {
	IDs        []int64
	FollowedBy *uuid.UUID
}

type FeedOrdering int

const (
	FeedOrderingIDAsc FeedOrdering = iota
	FeedOrderingPublishedAtDesc
)

// FeedPost is one item within a feed, unique per (feed_id, guid).
// Posts are immutable after ingestion.
type FeedPost struct {
	ID          int64     `json:"id" db:"id"`
	FeedID      int64     `json:"feed_id" db:"feed_id"`
	Title       string    `json:"title" db:"title"`
	Summary     *string   `json:"summary" db:"summary"`
	URL         string    `json:"url" db:"url"`
	GUID        string    `json:"guid" db:"guid"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type NewFeedPost struct {
	FeedID      int64
	Title       string
	Summary     *string
	URL         string
	GUID        string
	PublishedAt time.Time
}

// FeedPostFiltering narrows post listings. FollowedBy joins against the
// user's subscriptions; ReadBy/NotReadBy join against the read-state table.
type FeedPostFiltering struct {
	FeedID     *int64
	FollowedBy *uuid.UUID
	ReadBy     *uuid.UUID
	NotReadBy  *uuid.UUID
}

type FeedPostOrdering int

const (
	FeedPostOrderingPublishedAtDesc FeedPostOrdering = iota
)

// FeedRefreshJob is the per-feed control record that drives the refresh
// pipeline. There is at most one job per feed. Ownership of an in_progress
// job is implicit in the state itself, protected by the CAS transitions.
type FeedRefreshJob struct {
	ID             int64     `json:"id" db:"id"`
	FeedID         int64     `json:"feed_id" db:"feed_id"`
	State          JobState  `json:"state" db:"state"`
	StateChangedAt time.Time `json:"state_changed_at" db:"state_changed_at"`
	ExecuteAfter   time.Time `json:"execute_after" db:"execute_after"`
	Retries        int       `json:"retries" db:"retries"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NewFeedRefreshJob holds the fields needed to enqueue a refresh job.
type NewFeedRefreshJob struct {
	FeedID       int64
	State        JobState
	ExecuteAfter time.Time
	Retries      int
}

// JobUpdates carries optional mutations applied by Update. Update never
// touches the state column; state moves only through TransitState.
type JobUpdates struct {
	ExecuteAfter *time.Time
	Retries      *int
}

// JobFiltering narrows job listings. Nil fields are ignored.
type JobFiltering struct {
	State              *JobState
	StateChangedBefore *time.Time
	ExecuteBefore      *time.Time
}

type JobOrdering int

const (
	JobOrderingIDAsc JobOrdering = iota
	JobOrderingExecuteAfterAsc
	JobOrderingStateChangedAtAsc
)

// UserFeed links a user to a feed they follow.
type UserFeed struct {
	ID        int64     `json:"id" db:"id"`
	UserUID   uuid.UUID `json:"user_uid" db:"user_uid"`
	FeedID    int64     `json:"feed_id" db:"feed_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NewUserFeed struct {
	UserUID uuid.UUID
	FeedID  int64
}

// UserPost records that a user has read a post.
type UserPost struct {
	ID      int64     `json:"id" db:"id"`
	UserUID uuid.UUID `json:"user_uid" db:"user_uid"`
	PostID  int64     `json:"post_id" db:"post_id"`
	ReadAt  time.Time `json:"read_at" db:"read_at"`
}

type NewUserPost struct {
	UserUID uuid.UUID
	PostID  int64
	ReadAt  time.Time
}
