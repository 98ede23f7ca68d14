package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/itskum47/FeedForge/observability"
)

// TokenBucketLimiter keeps one token bucket per key. Buckets are created
// lazily and never evicted; keys are user UIDs, so the map is bounded by
// the active user population.
type TokenBucketLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewTokenBucketLimiter creates a limiter allowing r tokens per second with
// burst b per key.
func NewTokenBucketLimiter(r float64, b int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

// Allow reports whether the key may proceed.
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter.Allow()
}

// RateLimit rejects requests exceeding the per-user budget with 429. It
// must run after Auth; unauthenticated requests share one bucket keyed by
// remote address.
func RateLimit(limiter *TokenBucketLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if uid, err := UserUIDFromContext(r.Context()); err == nil {
				key = uid.String()
			}

			if !limiter.Allow(key) {
				observability.APIRateLimited.WithLabelValues(r.URL.Path).Inc()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
