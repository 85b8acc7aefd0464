package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// authState is what a CSRF state token resolves back to once the identity
// provider redirects the browser back to the callback endpoint.
type authState struct {
	ProviderType string
	RedirectURL  string
	ExpiresAt    time.Time
}

// stateStore is a one-time-use CSRF state token store. ValidateAuthState on
// the teacher's sso.Service deletes on read for the same reason: a state
// value must not be replayable.
type stateStore interface {
	put(ctx context.Context, state string, v authState) error
	consume(ctx context.Context, state string) (authState, bool, error)
}

// newState generates a random, URL-safe CSRF state token.
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// memoryStateStore is the single-process fallback, grounded directly on the
// teacher's sso.Service states map (internal/sso/service.go).
type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]authState
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[string]authState)}
}

func (m *memoryStateStore) put(_ context.Context, state string, v authState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = v
	return nil
}

func (m *memoryStateStore) consume(_ context.Context, state string) (authState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.states[state]
	if !ok {
		return authState{}, false, nil
	}
	delete(m.states, state)
	if time.Now().After(v.ExpiresAt) {
		return authState{}, false, nil
	}
	return v, true, nil
}

// redisStateStore backs the same contract with Redis, so the state a user
// starts their OIDC flow with on one replica can be consumed by whichever
// replica the identity provider happens to redirect back to.
type redisStateStore struct {
	client *redis.Client
	prefix string
}

func newRedisStateStore(client *redis.Client) *redisStateStore {
	return &redisStateStore{client: client, prefix: "pgconsole:oidc-state:"}
}

func (r *redisStateStore) put(ctx context.Context, state string, v authState) error {
	ttl := time.Until(v.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	payload := fmt.Sprintf("%s|%s", v.ProviderType, v.RedirectURL)
	return r.client.Set(ctx, r.prefix+state, payload, ttl).Err()
}

func (r *redisStateStore) consume(ctx context.Context, state string) (authState, bool, error) {
	key := r.prefix + state
	payload, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return authState{}, false, nil
	}
	if err != nil {
		return authState{}, false, err
	}
	r.client.Del(ctx, key)

	var providerType, redirectURL string
	for i := 0; i < len(payload); i++ {
		if payload[i] == '|' {
			providerType = payload[:i]
			redirectURL = payload[i+1:]
			break
		}
	}
	return authState{ProviderType: providerType, RedirectURL: redirectURL}, true, nil
}
