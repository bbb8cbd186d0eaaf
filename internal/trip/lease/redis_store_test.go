package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/trip/lease"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStoreAcquireContention(t *testing.T) {
	_, client := newRedisClient(t)
	store := lease.NewRedisStore(client)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "trip-lock:1", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, "trip-lock:1", "token-b", time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	owner, held, err := store.Get(ctx, "trip-lock:1")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "token-a", owner)
}

func TestRedisStoreReleaseVerifiesOwner(t *testing.T) {
	_, client := newRedisClient(t)
	store := lease.NewRedisStore(client)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "trip-lock:1", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := store.Release(ctx, "trip-lock:1", "token-b")
	require.NoError(t, err)
	require.False(t, released)

	_, held, err := store.Get(ctx, "trip-lock:1")
	require.NoError(t, err)
	require.True(t, held)

	released, err = store.Release(ctx, "trip-lock:1", "token-a")
	require.NoError(t, err)
	require.True(t, released)

	_, held, err = store.Get(ctx, "trip-lock:1")
	require.NoError(t, err)
	require.False(t, held)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	mr, client := newRedisClient(t)
	store := lease.NewRedisStore(client)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "trip-lock:1", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = store.Acquire(ctx, "trip-lock:1", "token-b", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// expired holder must not delete the successor's lease
	released, err := store.Release(ctx, "trip-lock:1", "token-a")
	require.NoError(t, err)
	require.False(t, released)

	owner, held, err := store.Get(ctx, "trip-lock:1")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "token-b", owner)
}
