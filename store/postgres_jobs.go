package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const jobColumns = "id, feed_id, state, state_changed_at, execute_after, retries, created_at, updated_at"

func scanJob(row pgx.Row) (*FeedRefreshJob, error) {
	var j FeedRefreshJob
	err := row.Scan(
		&j.ID, &j.FeedID, &j.State, &j.StateChangedAt,
		&j.ExecuteAfter, &j.Retries, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Postgres) GetJobByID(ctx context.Context, id int64) (*FeedRefreshJob, error) {
	query := `SELECT ` + jobColumns + ` FROM feed_refresh_job WHERE id = $1`
	return scanJob(s.q(ctx).QueryRow(ctx, query, id))
}

func (s *Postgres) GetJobByFeedID(ctx context.Context, feedID int64) (*FeedRefreshJob, error) {
	query := `SELECT ` + jobColumns + ` FROM feed_refresh_job WHERE feed_id = $1`
	return scanJob(s.q(ctx).QueryRow(ctx, query, feedID))
}

// GetOrCreateJob inserts the job, returning the existing row when the feed
// already has one. A dangling feed reference yields ErrNoFeed.
func (s *Postgres) GetOrCreateJob(ctx context.Context, nj NewFeedRefreshJob) (*FeedRefreshJob, error) {
	state := nj.State
	if state == 0 {
		state = JobStatePending
	}
	query := `
		INSERT INTO feed_refresh_job (feed_id, state, execute_after, retries)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (feed_id) DO NOTHING
		RETURNING ` + jobColumns
	job, err := scanJob(s.q(ctx).QueryRow(ctx, query, nj.FeedID, state, nj.ExecuteAfter, nj.Retries))
	if errors.Is(err, ErrNotFound) {
		return s.GetJobByFeedID(ctx, nj.FeedID)
	}
	if err != nil {
		return nil, mapConstraintError(err, ErrNoFeed)
	}
	return job, nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFiltering, order JobOrdering, limit, offset int) ([]*FeedRefreshJob, error) {
	var (
		conds []string
		args  []any
	)

	if filter.State != nil {
		args = append(args, *filter.State)
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.StateChangedBefore != nil {
		args = append(args, *filter.StateChangedBefore)
		conds = append(conds, fmt.Sprintf("state_changed_at < $%d", len(args)))
	}
	if filter.ExecuteBefore != nil {
		args = append(args, *filter.ExecuteBefore)
		conds = append(conds, fmt.Sprintf("execute_after <= $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM feed_refresh_job`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	switch order {
	case JobOrderingExecuteAfterAsc:
		query += " ORDER BY execute_after ASC, id ASC"
	case JobOrderingStateChangedAtAsc:
		query += " ORDER BY state_changed_at ASC, id ASC"
	default:
		query += " ORDER BY id ASC"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*FeedRefreshJob
	for rows.Next() {
		var j FeedRefreshJob
		if err := rows.Scan(
			&j.ID, &j.FeedID, &j.State, &j.StateChangedAt,
			&j.ExecuteAfter, &j.Retries, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// UpdateJob applies the non-nil fields of updates. State is deliberately
// not updatable here; it moves only through the CAS transitions.
func (s *Postgres) UpdateJob(ctx context.Context, id int64, updates JobUpdates) (*FeedRefreshJob, error) {
	query := `
		UPDATE feed_refresh_job
		SET execute_after = COALESCE($2, execute_after),
		    retries = COALESCE($3, retries),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + jobColumns
	return scanJob(s.q(ctx).QueryRow(ctx, query, id, updates.ExecuteAfter, updates.Retries))
}

// TransitJobState performs a single compare-and-swap transition. The row is
// locked first so the state observation and the state_changed_at update are
// serialized against concurrent workers in this process; cross-process
// safety comes from the CAS predicate itself.
func (s *Postgres) TransitJobState(ctx context.Context, id int64, old, new JobState) (*FeedRefreshJob, error) {
	var job *FeedRefreshJob
	err := s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)

		var current JobState
		err := q.QueryRow(ctx, `SELECT state FROM feed_refresh_job WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != old {
			return ErrStateTransitionFailed
		}

		query := `
			UPDATE feed_refresh_job
			SET state = $3, state_changed_at = now(), updated_at = now()
			WHERE id = $1 AND state = $2
			RETURNING ` + jobColumns
		job, err = scanJob(q.QueryRow(ctx, query, id, old, new))
		if errors.Is(err, ErrNotFound) {
			return ErrStateTransitionFailed
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// TransitJobStateBatch bulk-CASes every job in ids still in old to new and
// returns the rows actually updated. Jobs claimed by a competing process in
// the meantime are simply missing from the result.
func (s *Postgres) TransitJobStateBatch(ctx context.Context, ids []int64, old, new JobState) ([]*FeedRefreshJob, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE feed_refresh_job
		SET state = $3, state_changed_at = now(), updated_at = now()
		WHERE id = ANY($1) AND state = $2
		RETURNING ` + jobColumns

	rows, err := s.q(ctx).Query(ctx, query, ids, old, new)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*FeedRefreshJob
	for rows.Next() {
		var j FeedRefreshJob
		if err := rows.Scan(
			&j.ID, &j.FeedID, &j.State, &j.StateChangedAt,
			&j.ExecuteAfter, &j.Retries, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (s *Postgres) CountJobsByState(ctx context.Context) (map[JobState]int, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT state, COUNT(*) FROM feed_refresh_job GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[JobState]int)
	for rows.Next() {
		var state JobState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[state] = count
	}
	return counts, rows.Err()
}
