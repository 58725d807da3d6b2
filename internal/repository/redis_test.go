package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crumbhq/sera/internal/models"
)

func newRedisStore(t *testing.T) (*RedisLockStore, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	clock := newFakeClock()
	store := NewRedisLockStore(client, time.Minute, testLogger())
	store.now = clock.Now
	return store, clock
}

func TestRedisLockStore(t *testing.T) {
	runLockStoreSuite(t, func(t *testing.T) (models.LockStore, *fakeClock) {
		t.Helper()
		return newRedisStore(t)
	})
}

func TestRedisLockStoreNativeEviction(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	store := NewRedisLockStore(client, time.Second, testLogger())

	_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	// Redis evicts the hash after lifetime plus linger, no sweeper involved.
	mr.FastForward(3 * time.Second)

	row, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRedisLockStoreDeleteExpiredIsNoop(t *testing.T) {
	ctx := context.Background()
	store, clock := newRedisStore(t)

	_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(10 * time.Minute)
	removed, err := store.DeleteExpired(ctx, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)
}

func TestRedisLockStorePing(t *testing.T) {
	store, _ := newRedisStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
