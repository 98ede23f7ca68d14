package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const feedColumns = "id, url, title, published_at, created_at"

func scanFeed(row pgx.Row) (*Feed, error) {
	var f Feed
	err := row.Scan(&f.ID, &f.URL, &f.Title, &f.PublishedAt, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Postgres) GetFeedByID(ctx context.Context, id int64) (*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feed WHERE id = $1`
	return scanFeed(s.q(ctx).QueryRow(ctx, query, id))
}

func (s *Postgres) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feed WHERE url = $1`
	return scanFeed(s.q(ctx).QueryRow(ctx, query, url))
}

// GetOrCreateFeed inserts the feed, returning the existing row when the url
// is already registered.
func (s *Postgres) GetOrCreateFeed(ctx context.Context, nf NewFeed) (*Feed, error) {
	query := `
		INSERT INTO feed (url, title, published_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO NOTHING
		RETURNING ` + feedColumns
	feed, err := scanFeed(s.q(ctx).QueryRow(ctx, query, nf.URL, nf.Title, nf.PublishedAt))
	if errors.Is(err, ErrNotFound) {
		// Lost the insert race or the feed already existed.
		return s.GetFeedByURL(ctx, nf.URL)
	}
	if err != nil {
		return nil, mapConstraintError(err, ErrIntegrityViolation)
	}
	return feed, nil
}

func (s *Postgres) ListFeeds(ctx context.Context, filter FeedFiltering, order FeedOrdering, limit, offset int) ([]*Feed, error) {
	var (
		conds []string
		joins string
		args  []any
	)

	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("f.id = ANY($%d)", len(args)))
	}
	if filter.FollowedBy != nil {
		joins = " JOIN user_feed uf ON uf.feed_id = f.id"
		args = append(args, *filter.FollowedBy)
		conds = append(conds, fmt.Sprintf("uf.user_uid = $%d", len(args)))
	}

	query := `SELECT f.id, f.url, f.title, f.published_at, f.created_at FROM feed f` + joins
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	switch order {
	case FeedOrderingPublishedAtDesc:
		query += " ORDER BY f.published_at DESC NULLS LAST, f.id ASC"
	default:
		query += " ORDER BY f.id ASC"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.URL, &f.Title, &f.PublishedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		feeds = append(feeds, &f)
	}
	return feeds, rows.Err()
}

// UpdateFeed applies the non-nil fields of updates. The worker calls this
// with the parsed title and the new publication watermark after a
// successful refresh.
func (s *Postgres) UpdateFeed(ctx context.Context, id int64, updates FeedUpdates) (*Feed, error) {
	query := `
		UPDATE feed
		SET title = COALESCE($2, title),
		    published_at = COALESCE($3, published_at)
		WHERE id = $1
		RETURNING ` + feedColumns
	return scanFeed(s.q(ctx).QueryRow(ctx, query, id, updates.Title, updates.PublishedAt))
}
