package admission

import (
	"context"
	"testing"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_LocalFallbackAcquiresUpToMax(t *testing.T) {
	l := NewLimiter(nil, 2, zerolog.Nop())
	ctx := context.Background()

	release1, err := l.Acquire(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "alice@example.com")
	require.Error(t, err)
	status, code, _ := apierr.As(err)
	assert.Equal(t, 403, status)
	assert.Equal(t, "PERMISSION_DENIED", code)

	release1(ctx)

	_, err = l.Acquire(ctx, "alice@example.com")
	assert.NoError(t, err, "releasing a slot must free it for the next acquire")
}

func TestLimiter_PrincipalsAreIsolated(t *testing.T) {
	l := NewLimiter(nil, 1, zerolog.Nop())
	ctx := context.Background()

	_, err := l.Acquire(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "bob@example.com")
	assert.NoError(t, err, "bob's quota must not be affected by alice's acquisitions")
}

func TestLimiter_DefaultsInvalidMaxToDefaultConstant(t *testing.T) {
	l := NewLimiter(nil, 0, zerolog.Nop())
	assert.Equal(t, DefaultMaxConcurrentQueries, l.max)
}

func TestLimiter_ReleaseIsIdempotentBelowZero(t *testing.T) {
	l := NewLimiter(nil, 1, zerolog.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "alice@example.com")
	require.NoError(t, err)

	release(ctx)
	release(ctx)

	_, err = l.Acquire(ctx, "alice@example.com")
	assert.NoError(t, err)
}
