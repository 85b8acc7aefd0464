// Package admission implements the concurrent-query admission control that
// supplements spec.md's session admission model (C9): it caps how many
// queries a single principal may have in flight at once, independent of
// the per-connection pool size, so one chatty session cannot starve
// everyone else sharing a connection's pool.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/rs/zerolog"
)

// DefaultMaxConcurrentQueries is used when no override is configured.
const DefaultMaxConcurrentQueries = 10

// Limiter caps concurrent in-flight queries per principal. Grounded on the
// teacher's internal/ratelimit/limiter.go INCR/EXPIRE idiom, adapted from a
// requests-per-window counter to a held-until-released concurrency counter.
type Limiter struct {
	redis  *database.Redis
	logger zerolog.Logger
	max    int

	// local is the single-process fallback used when Redis is unavailable,
	// matching the teacher's "fail open, but still bound locally" posture.
	mu    sync.Mutex
	local map[string]int
}

// NewLimiter builds a limiter capping each principal at max concurrent
// queries. redis may be nil, in which case the limiter falls back to an
// in-process counter only (no cross-replica admission guarantee).
func NewLimiter(redis *database.Redis, max int, logger zerolog.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMaxConcurrentQueries
	}
	return &Limiter{
		redis:  redis,
		logger: logger,
		max:    max,
		local:  make(map[string]int),
	}
}

// Release decrements the counter the matching Acquire call incremented.
type Release func(ctx context.Context)

// Acquire admits one more in-flight query for email, or returns a
// PermissionDenied-shaped apierr if the principal is already at the cap.
func (l *Limiter) Acquire(ctx context.Context, email string) (Release, error) {
	if l.redis == nil || l.redis.Client == nil {
		return l.acquireLocal(email)
	}

	key := fmt.Sprintf("pgconsole:admission:%s", email)
	count, err := l.redis.Client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn().Err(err).Str("email", email).Msg("admission counter unavailable, falling back to local limiter")
		return l.acquireLocal(email)
	}
	if count == 1 {
		l.redis.Client.Expire(ctx, key, time.Hour)
	}
	if int(count) > l.max {
		l.redis.Client.Decr(ctx, key)
		return nil, apierr.PermissionDenied(fmt.Sprintf("too many concurrent queries (limit %d)", l.max))
	}

	return func(ctx context.Context) {
		l.redis.Client.Decr(ctx, key)
	}, nil
}

func (l *Limiter) acquireLocal(email string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.local[email] >= l.max {
		return nil, apierr.PermissionDenied(fmt.Sprintf("too many concurrent queries (limit %d)", l.max))
	}
	l.local[email]++
	return func(_ context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.local[email] > 0 {
			l.local[email]--
		}
	}, nil
}
