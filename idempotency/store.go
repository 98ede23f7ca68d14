// Package idempotency caches the responses of mutating API requests in
// Redis, keyed by the client-supplied Idempotency-Key header. A retried
// request replays the stored response instead of re-executing the mutation.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itskum47/FeedForge/observability"
)

const (
	lockTTL   = 30 * time.Second
	resultTTL = 24 * time.Hour
)

// Response is the cached outcome of a mutating request.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// Store implements two-phase idempotency on Redis: a SetNX lock marks an
// execution in progress, and the stored result replaces it on completion.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func lockKey(key string) string   { return "idempotency:lock:" + key }
func resultKey(key string) string { return "idempotency:result:" + key }

// Execute runs fn exactly once per key. Concurrent or repeated calls with
// the same key either wait for the first execution's result or replay it.
// fn errors are not cached; a failed request may be retried with the same
// key.
func (s *Store) Execute(ctx context.Context, key string, fn func(context.Context) (*Response, error)) (*Response, error) {
	if cached, err := s.getResult(ctx, key); err != nil {
		return nil, err
	} else if cached != nil {
		observability.IdempotencyHits.Inc()
		return cached, nil
	}

	acquired, err := s.client.SetNX(ctx, lockKey(key), "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency lock: %w", err)
	}
	if !acquired {
		// Another request is executing this key; wait for its result.
		observability.IdempotencyHits.Inc()
		return s.waitForResult(ctx, key)
	}
	defer s.client.Del(ctx, lockKey(key))

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("idempotency marshal: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(key), data, resultTTL).Err(); err != nil {
		// The mutation succeeded; losing the cache entry only costs replay
		// protection for this key.
		return resp, nil
	}
	return resp, nil
}

func (s *Store) getResult(ctx context.Context, key string) (*Response, error) {
	data, err := s.client.Get(ctx, resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency get: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("idempotency unmarshal: %w", err)
	}
	return &resp, nil
}

// waitForResult polls with backoff until the executing request stores its
// result or the lock expires without one.
func (s *Store) waitForResult(ctx context.Context, key string) (*Response, error) {
	backoff := 50 * time.Millisecond
	deadline := time.Now().Add(lockTTL)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}

		if cached, err := s.getResult(ctx, key); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}

		held, err := s.client.Exists(ctx, lockKey(key)).Result()
		if err != nil {
			return nil, fmt.Errorf("idempotency lock check: %w", err)
		}
		if held == 0 {
			// Lock released without a result: the original execution failed
			// and did not cache anything.
			return nil, errors.New("concurrent request with this idempotency key failed")
		}
	}
	return nil, errors.New("timed out waiting for concurrent idempotent request")
}
