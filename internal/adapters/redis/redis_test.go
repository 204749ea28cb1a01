package redisad_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "barefoot_sync/internal/adapters/redis"
	"barefoot_sync/internal/domain"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestCache_SetGetDel(t *testing.T) {
	mr, c := setup(t)
	cache := redisad.NewFromClient(c)
	ctx := context.Background()

	var pv domain.PropertyView
	ok, err := cache.Get(ctx, "property:1", &pv)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "property:1", domain.PropertyView{ID: 1, Title: "Bay Cottage"}, 60))
	assert.True(t, mr.Exists("barefoot:cache:property:1"))

	ok, err = cache.Get(ctx, "property:1", &pv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bay Cottage", pv.Title)

	mr.FastForward(61 * time.Second)
	ok, _ = cache.Get(ctx, "property:1", &pv)
	assert.False(t, ok, "entry expires after its ttl")

	require.NoError(t, cache.Set(ctx, "property:2", domain.PropertyView{ID: 2}, 60))
	require.NoError(t, cache.Del(ctx, "property:2"))
	assert.False(t, mr.Exists("barefoot:cache:property:2"))
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, c := setup(t)
	cache := redisad.NewFromClient(c)
	require.NoError(t, mr.Set("barefoot:cache:property:3", "not json"))

	var pv domain.PropertyView
	ok, err := cache.Get(context.Background(), "property:3", &pv)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("barefoot:cache:property:3"))
}

func TestLease_ExclusiveUntilReleased(t *testing.T) {
	_, c := setup(t)
	lease := redisad.NewLease(c)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, "barefoot:sync:lease", time.Minute)
	require.NoError(t, err)

	_, err = lease.Acquire(ctx, "barefoot:sync:lease", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrRunInProgress))

	require.NoError(t, release(ctx))

	release2, err := lease.Acquire(ctx, "barefoot:sync:lease", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestLease_ExpiryAndTakeover(t *testing.T) {
	mr, c := setup(t)
	lease := redisad.NewLease(c)
	ctx := context.Background()

	stale, err := lease.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lease.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// the expired holder must not delete the new holder's lease
	assert.Error(t, stale(ctx))
	assert.True(t, mr.Exists("k"))
	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("k"))
}

func TestLease_RenewedWhileHeld(t *testing.T) {
	mr, c := setup(t)
	lease := redisad.NewLease(c)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, "k", 90*time.Millisecond)
	require.NoError(t, err)

	// close to expiry in redis time; the holder renews it
	mr.FastForward(80 * time.Millisecond)
	require.Eventually(t, func() bool { return mr.TTL("k") > 50*time.Millisecond }, 2*time.Second, 5*time.Millisecond)
	mr.FastForward(60 * time.Millisecond)
	assert.True(t, mr.Exists("k"))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("k"))
}

func TestLease_BackendDown(t *testing.T) {
	mr, c := setup(t)
	mr.Close()

	_, err := redisad.NewLease(c).Acquire(context.Background(), "k", time.Minute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrRunInProgress))
}
