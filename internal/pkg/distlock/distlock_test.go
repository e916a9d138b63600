package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "tenant-pass:t1", time.Minute)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "first acquire should succeed")

	// A second lock instance for the same tenant must not acquire.
	other := NewRedisLock(client, "tenant-pass:t1", time.Minute)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "second acquire while held should fail")

	require.NoError(t, lock.Release(ctx))

	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "acquire after release should succeed")
}

func TestRedisLock_ReleaseOnlyOwner(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "tenant-pass:t2", time.Minute)
	ok, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owning instance releasing must not free the lock.
	stranger := NewRedisLock(client, "tenant-pass:t2", time.Minute)
	require.NoError(t, stranger.Release(ctx))

	ok, err = stranger.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "lock should still be held by owner")
}

func TestRedisLock_TTLExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	ctx := context.Background()

	lock := NewRedisLock(client, "tenant-pass:t3", 50*time.Millisecond)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(100 * time.Millisecond)

	other := NewRedisLock(client, "tenant-pass:t3", time.Minute)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "lock should be acquirable after TTL expiry")
}

func TestForTenant_PrefersRedis(t *testing.T) {
	client := newTestRedis(t)
	lock := ForTenant(client, nil, "t4", time.Minute)
	_, isRedis := lock.(*RedisLock)
	require.True(t, isRedis)
}
