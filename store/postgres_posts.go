package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const postColumns = "id, feed_id, title, summary, url, guid, published_at, created_at"

func scanPost(row pgx.Row) (*FeedPost, error) {
	var p FeedPost
	err := row.Scan(
		&p.ID, &p.FeedID, &p.Title, &p.Summary,
		&p.URL, &p.GUID, &p.PublishedAt, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) GetPostByID(ctx context.Context, id int64) (*FeedPost, error) {
	query := `SELECT ` + postColumns + ` FROM feed_post WHERE id = $1`
	return scanPost(s.q(ctx).QueryRow(ctx, query, id))
}

// CreatePosts bulk-inserts posts in a single statement. Rows conflicting on
// (feed_id, guid) are dropped, which makes re-ingestion of the same feed
// contents idempotent. The returned slice contains only the rows actually
// inserted.
func (s *Postgres) CreatePosts(ctx context.Context, posts []NewFeedPost) ([]*FeedPost, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(posts))
	args := make([]any, 0, len(posts)*6)
	for i, p := range posts {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, p.FeedID, p.Title, p.Summary, p.URL, p.GUID, p.PublishedAt)
	}

	query := `
		INSERT INTO feed_post (feed_id, title, summary, url, guid, published_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (feed_id, guid) DO NOTHING
		RETURNING ` + postColumns

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapConstraintError(err, ErrNoFeed)
	}
	defer rows.Close()

	var inserted []*FeedPost
	for rows.Next() {
		var p FeedPost
		if err := rows.Scan(
			&p.ID, &p.FeedID, &p.Title, &p.Summary,
			&p.URL, &p.GUID, &p.PublishedAt, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		inserted = append(inserted, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapConstraintError(err, ErrNoFeed)
	}
	return inserted, nil
}

func (s *Postgres) ListPosts(ctx context.Context, filter FeedPostFiltering, order FeedPostOrdering, limit, offset int) ([]*FeedPost, error) {
	var (
		conds []string
		joins []string
		args  []any
	)

	if filter.FeedID != nil {
		args = append(args, *filter.FeedID)
		conds = append(conds, fmt.Sprintf("p.feed_id = $%d", len(args)))
	}
	if filter.FollowedBy != nil {
		joins = append(joins, "JOIN user_feed uf ON uf.feed_id = p.feed_id")
		args = append(args, *filter.FollowedBy)
		conds = append(conds, fmt.Sprintf("uf.user_uid = $%d", len(args)))
	}
	if filter.ReadBy != nil {
		joins = append(joins, "JOIN user_post up ON up.post_id = p.id")
		args = append(args, *filter.ReadBy)
		conds = append(conds, fmt.Sprintf("up.user_uid = $%d", len(args)))
	}
	if filter.NotReadBy != nil {
		args = append(args, *filter.NotReadBy)
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN user_post upn ON upn.post_id = p.id AND upn.user_uid = $%d", len(args),
		))
		conds = append(conds, "upn.id IS NULL")
	}

	query := `SELECT p.id, p.feed_id, p.title, p.summary, p.url, p.guid, p.published_at, p.created_at FROM feed_post p`
	if len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// Only one ordering is currently defined; keep the switch so new
	// orderings slot in next to the feed listing.
	switch order {
	default:
		query += " ORDER BY p.published_at DESC, p.id ASC"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*FeedPost
	for rows.Next() {
		var p FeedPost
		if err := rows.Scan(
			&p.ID, &p.FeedID, &p.Title, &p.Summary,
			&p.URL, &p.GUID, &p.PublishedAt, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
