package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooterra/substrate/internal/lock"
)

func TestTryAcquireSucceedsWhenUnheld(t *testing.T) {
	l := lock.NewInProcess()
	token, ok, err := l.TryAcquire(context.Background(), "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
}

func TestTryAcquireFailsWhileHeld(t *testing.T) {
	l := lock.NewInProcess()
	ctx := context.Background()
	_, ok, err := l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	assert.False(t, ok, "a second acquire must fail while the first holder's TTL has not expired")
}

func TestReleaseThenReacquireSucceeds(t *testing.T) {
	l := lock.NewInProcess()
	ctx := context.Background()
	token, ok, err := l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "maintenance:tool-call-holdback", token))

	_, ok, err = l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	assert.True(t, ok, "releasing the holder must free the name for a new acquire")
}

func TestReleaseWithWrongTokenIsNoop(t *testing.T) {
	l := lock.NewInProcess()
	ctx := context.Background()
	_, ok, err := l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "maintenance:tool-call-holdback", "not-the-real-token"))

	_, ok, err = l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	assert.False(t, ok, "a release with a stale token must not free another holder's lock")
}

func TestTryAcquireSucceedsAfterTTLExpiry(t *testing.T) {
	l := lock.NewInProcess()
	ctx := context.Background()
	_, ok, err := l.TryAcquire(ctx, "maintenance:tool-call-holdback", 20)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok, err = l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	assert.True(t, ok, "an expired TTL must let a new holder acquire the lock")
}

func TestDistinctNamesDoNotContend(t *testing.T) {
	l := lock.NewInProcess()
	ctx := context.Background()
	_, ok, err := l.TryAcquire(ctx, "maintenance:tool-call-holdback", 30_000)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "maintenance:other-sweep", 30_000)
	require.NoError(t, err)
	assert.True(t, ok)
}
