package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements every repository interface plus Atomic in process
// memory. It preserves the CAS and uniqueness semantics of the Postgres
// implementation and backs the package tests and single-node dev mode.
//
// WithTx runs the callback directly: individual operations are atomic
// under the store mutex, but a failed callback is not rolled back.
type Memory struct {
	mu sync.Mutex

	feeds     map[int64]*Feed
	posts     map[int64]*FeedPost
	jobs      map[int64]*FeedRefreshJob
	userFeeds map[int64]*UserFeed
	userPosts map[int64]*UserPost

	nextFeedID     int64
	nextPostID     int64
	nextJobID      int64
	nextUserFeedID int64
	nextUserPostID int64
}

// NewMemory initializes an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		feeds:     make(map[int64]*Feed),
		posts:     make(map[int64]*FeedPost),
		jobs:      make(map[int64]*FeedRefreshJob),
		userFeeds: make(map[int64]*UserFeed),
		userPosts: make(map[int64]*UserPost),
	}
}

func (s *Memory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Feed operations ---

func (s *Memory) GetFeedByID(ctx context.Context, id int64) (*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Memory) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedByURLLocked(url)
}

func (s *Memory) feedByURLLocked(url string) (*Feed, error) {
	for _, f := range s.feeds {
		if f.URL == url {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) GetOrCreateFeed(ctx context.Context, nf NewFeed) (*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.feedByURLLocked(nf.URL); err == nil {
		return existing, nil
	}

	s.nextFeedID++
	f := &Feed{
		ID:          s.nextFeedID,
		URL:         nf.URL,
		Title:       nf.Title,
		PublishedAt: nf.PublishedAt,
		CreatedAt:   time.Now(),
	}
	s.feeds[f.ID] = f
	cp := *f
	return &cp, nil
}

func (s *Memory) ListFeeds(ctx context.Context, filter FeedFiltering, order FeedOrdering, limit, offset int) ([]*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Feed
	for _, f := range s.feeds {
		if len(filter.IDs) > 0 && !containsID(filter.IDs, f.ID) {
			continue
		}
		if filter.FollowedBy != nil && !s.followsLocked(*filter.FollowedBy, f.ID) {
			continue
		}
		cp := *f
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if order == FeedOrderingPublishedAtDesc {
			switch {
			case a.PublishedAt == nil && b.PublishedAt == nil:
			case a.PublishedAt == nil:
				return false
			case b.PublishedAt == nil:
				return true
			case !a.PublishedAt.Equal(*b.PublishedAt):
				return a.PublishedAt.After(*b.PublishedAt)
			}
		}
		return a.ID < b.ID
	})

	return paginate(matched, limit, offset), nil
}

func (s *Memory) UpdateFeed(ctx context.Context, id int64, updates FeedUpdates) (*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[id]
	if !ok {
		return nil, ErrNotFound
	}
	if updates.Title != nil {
		f.Title = updates.Title
	}
	if updates.PublishedAt != nil {
		f.PublishedAt = updates.PublishedAt
	}
	cp := *f
	return &cp, nil
}

func (s *Memory) followsLocked(userUID uuid.UUID, feedID int64) bool {
	for _, uf := range s.userFeeds {
		if uf.UserUID == userUID && uf.FeedID == feedID {
			return true
		}
	}
	return false
}

// --- Post operations ---

func (s *Memory) GetPostByID(ctx context.Context, id int64) (*FeedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) CreatePosts(ctx context.Context, posts []NewFeedPost) ([]*FeedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []*FeedPost
	for _, np := range posts {
		if _, ok := s.feeds[np.FeedID]; !ok {
			return nil, ErrNoFeed
		}
		if s.postExistsLocked(np.FeedID, np.GUID) {
			continue
		}
		s.nextPostID++
		p := &FeedPost{
			ID:          s.nextPostID,
			FeedID:      np.FeedID,
			Title:       np.Title,
			Summary:     np.Summary,
			URL:         np.URL,
			GUID:        np.GUID,
			PublishedAt: np.PublishedAt,
			CreatedAt:   time.Now(),
		}
		s.posts[p.ID] = p
		cp := *p
		inserted = append(inserted, &cp)
	}
	return inserted, nil
}

func (s *Memory) postExistsLocked(feedID int64, guid string) bool {
	for _, p := range s.posts {
		if p.FeedID == feedID && p.GUID == guid {
			return true
		}
	}
	return false
}

func (s *Memory) ListPosts(ctx context.Context, filter FeedPostFiltering, order FeedPostOrdering, limit, offset int) ([]*FeedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*FeedPost
	for _, p := range s.posts {
		if filter.FeedID != nil && p.FeedID != *filter.FeedID {
			continue
		}
		if filter.FollowedBy != nil && !s.followsLocked(*filter.FollowedBy, p.FeedID) {
			continue
		}
		if filter.ReadBy != nil && !s.readLocked(*filter.ReadBy, p.ID) {
			continue
		}
		if filter.NotReadBy != nil && s.readLocked(*filter.NotReadBy, p.ID) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})

	return paginate(matched, limit, offset), nil
}

func (s *Memory) readLocked(userUID uuid.UUID, postID int64) bool {
	for _, up := range s.userPosts {
		if up.UserUID == userUID && up.PostID == postID {
			return true
		}
	}
	return false
}

// --- Job operations ---

func (s *Memory) GetJobByID(ctx context.Context, id int64) (*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Memory) GetJobByFeedID(ctx context.Context, feedID int64) (*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.FeedID == feedID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) GetOrCreateJob(ctx context.Context, nj NewFeedRefreshJob) (*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.FeedID == nj.FeedID {
			cp := *j
			return &cp, nil
		}
	}
	if _, ok := s.feeds[nj.FeedID]; !ok {
		return nil, ErrNoFeed
	}

	state := nj.State
	if state == 0 {
		state = JobStatePending
	}
	now := time.Now()
	s.nextJobID++
	j := &FeedRefreshJob{
		ID:             s.nextJobID,
		FeedID:         nj.FeedID,
		State:          state,
		StateChangedAt: now,
		ExecuteAfter:   nj.ExecuteAfter,
		Retries:        nj.Retries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (s *Memory) ListJobs(ctx context.Context, filter JobFiltering, order JobOrdering, limit, offset int) ([]*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*FeedRefreshJob
	for _, j := range s.jobs {
		if filter.State != nil && j.State != *filter.State {
			continue
		}
		if filter.StateChangedBefore != nil && !j.StateChangedAt.Before(*filter.StateChangedBefore) {
			continue
		}
		if filter.ExecuteBefore != nil && j.ExecuteAfter.After(*filter.ExecuteBefore) {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch order {
		case JobOrderingExecuteAfterAsc:
			if !a.ExecuteAfter.Equal(b.ExecuteAfter) {
				return a.ExecuteAfter.Before(b.ExecuteAfter)
			}
		case JobOrderingStateChangedAtAsc:
			if !a.StateChangedAt.Equal(b.StateChangedAt) {
				return a.StateChangedAt.Before(b.StateChangedAt)
			}
		}
		return a.ID < b.ID
	})

	return paginate(matched, limit, offset), nil
}

func (s *Memory) UpdateJob(ctx context.Context, id int64, updates JobUpdates) (*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if updates.ExecuteAfter != nil {
		j.ExecuteAfter = *updates.ExecuteAfter
	}
	if updates.Retries != nil {
		j.Retries = *updates.Retries
	}
	j.UpdatedAt = time.Now()
	cp := *j
	return &cp, nil
}

func (s *Memory) TransitJobState(ctx context.Context, id int64, old, new JobState) (*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.State != old {
		return nil, ErrStateTransitionFailed
	}
	now := time.Now()
	j.State = new
	j.StateChangedAt = now
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (s *Memory) TransitJobStateBatch(ctx context.Context, ids []int64, old, new JobState) ([]*FeedRefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var updated []*FeedRefreshJob
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.State != old {
			continue
		}
		j.State = new
		j.StateChangedAt = now
		j.UpdatedAt = now
		cp := *j
		updated = append(updated, &cp)
	}
	return updated, nil
}

func (s *Memory) CountJobsByState(ctx context.Context) (map[JobState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[JobState]int)
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts, nil
}

// --- UserFeed operations ---

func (s *Memory) GetOrCreateUserFeed(ctx context.Context, nuf NewUserFeed) (*UserFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, uf := range s.userFeeds {
		if uf.UserUID == nuf.UserUID && uf.FeedID == nuf.FeedID {
			cp := *uf
			return &cp, nil
		}
	}
	if _, ok := s.feeds[nuf.FeedID]; !ok {
		return nil, ErrNoFeed
	}

	s.nextUserFeedID++
	uf := &UserFeed{
		ID:        s.nextUserFeedID,
		UserUID:   nuf.UserUID,
		FeedID:    nuf.FeedID,
		CreatedAt: time.Now(),
	}
	s.userFeeds[uf.ID] = uf
	cp := *uf
	return &cp, nil
}

func (s *Memory) GetUserFeed(ctx context.Context, userUID uuid.UUID, feedID int64) (*UserFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, uf := range s.userFeeds {
		if uf.UserUID == userUID && uf.FeedID == feedID {
			cp := *uf
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) DeleteUserFeed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userFeeds[id]; !ok {
		return ErrNotFound
	}
	delete(s.userFeeds, id)
	return nil
}

// --- UserPost operations ---

func (s *Memory) GetOrCreateUserPost(ctx context.Context, nup NewUserPost) (*UserPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, up := range s.userPosts {
		if up.UserUID == nup.UserUID && up.PostID == nup.PostID {
			cp := *up
			return &cp, nil
		}
	}
	if _, ok := s.posts[nup.PostID]; !ok {
		return nil, ErrNoPost
	}

	s.nextUserPostID++
	up := &UserPost{
		ID:      s.nextUserPostID,
		UserUID: nup.UserUID,
		PostID:  nup.PostID,
		ReadAt:  nup.ReadAt,
	}
	s.userPosts[up.ID] = up
	cp := *up
	return &cp, nil
}

func (s *Memory) GetUserPost(ctx context.Context, userUID uuid.UUID, postID int64) (*UserPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, up := range s.userPosts {
		if up.UserUID == userUID && up.PostID == postID {
			cp := *up
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) DeleteUserPost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userPosts[id]; !ok {
		return ErrNotFound
	}
	delete(s.userPosts, id)
	return nil
}

// --- helpers ---

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
