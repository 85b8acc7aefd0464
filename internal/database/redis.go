package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis wraps the shared Redis client used for cross-replica OAuth state
// (internal/identity) and the concurrent-query admission counters
// (internal/admission). Adapted directly from the teacher's
// internal/database/redis.go, trimmed to the operations those two callers
// actually use.
type Redis struct {
	Client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects to addr and verifies reachability before returning.
func NewRedis(ctx context.Context, addr, password string, db int, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info().Str("addr", addr).Msg("redis connected")
	return &Redis{Client: client, logger: logger}, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// Health reports whether Redis answers a ping within five seconds.
func (r *Redis) Health() bool {
	if r.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Client.Ping(ctx).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("redis health check failed")
		return false
	}
	return true
}
