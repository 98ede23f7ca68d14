package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanUserFeed(row pgx.Row) (*UserFeed, error) {
	var uf UserFeed
	err := row.Scan(&uf.ID, &uf.UserUID, &uf.FeedID, &uf.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &uf, nil
}

func (s *Postgres) GetOrCreateUserFeed(ctx context.Context, nuf NewUserFeed) (*UserFeed, error) {
	query := `
		INSERT INTO user_feed (user_uid, feed_id)
		VALUES ($1, $2)
		ON CONFLICT (user_uid, feed_id) DO NOTHING
		RETURNING id, user_uid, feed_id, created_at`
	uf, err := scanUserFeed(s.q(ctx).QueryRow(ctx, query, nuf.UserUID, nuf.FeedID))
	if errors.Is(err, ErrNotFound) {
		return s.GetUserFeed(ctx, nuf.UserUID, nuf.FeedID)
	}
	if err != nil {
		return nil, mapConstraintError(err, ErrNoFeed)
	}
	return uf, nil
}

func (s *Postgres) GetUserFeed(ctx context.Context, userUID uuid.UUID, feedID int64) (*UserFeed, error) {
	query := `SELECT id, user_uid, feed_id, created_at FROM user_feed WHERE user_uid = $1 AND feed_id = $2`
	return scanUserFeed(s.q(ctx).QueryRow(ctx, query, userUID, feedID))
}

func (s *Postgres) DeleteUserFeed(ctx context.Context, id int64) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM user_feed WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUserPost(row pgx.Row) (*UserPost, error) {
	var up UserPost
	err := row.Scan(&up.ID, &up.UserUID, &up.PostID, &up.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &up, nil
}

func (s *Postgres) GetOrCreateUserPost(ctx context.Context, nup NewUserPost) (*UserPost, error) {
	query := `
		INSERT INTO user_post (user_uid, post_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_uid, post_id) DO NOTHING
		RETURNING id, user_uid, post_id, read_at`
	up, err := scanUserPost(s.q(ctx).QueryRow(ctx, query, nup.UserUID, nup.PostID, nup.ReadAt))
	if errors.Is(err, ErrNotFound) {
		return s.GetUserPost(ctx, nup.UserUID, nup.PostID)
	}
	if err != nil {
		return nil, mapConstraintError(err, ErrNoPost)
	}
	return up, nil
}

func (s *Postgres) GetUserPost(ctx context.Context, userUID uuid.UUID, postID int64) (*UserPost, error) {
	query := `SELECT id, user_uid, post_id, read_at FROM user_post WHERE user_uid = $1 AND post_id = $2`
	return scanUserPost(s.q(ctx).QueryRow(ctx, query, userUID, postID))
}

func (s *Postgres) DeleteUserPost(ctx context.Context, id int64) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM user_post WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
