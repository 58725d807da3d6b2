package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
)

// fakeClock lets the suite move time instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func acquireReq(resourceID, userID, sessionID string, ttl time.Duration) models.AcquireRequest {
	return models.AcquireRequest{
		ResourceKind:    models.KindCustomerOrder,
		ResourceID:      resourceID,
		HolderUserID:    userID,
		HolderSessionID: sessionID,
		TTL:             ttl,
	}
}

type storeFactory func(t *testing.T) (models.LockStore, *fakeClock)

// runLockStoreSuite checks the locking contract every backend must honor.
func runLockStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("AcquireFree", func(t *testing.T) {
		store, clock := newStore(t)

		row, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		now := clock.Now().Unix()
		assert.NotEmpty(t, row.ID)
		assert.Equal(t, models.KindCustomerOrder, row.ResourceKind)
		assert.Equal(t, "order-1", row.ResourceID)
		assert.Equal(t, "alice", row.HolderUserID)
		assert.Equal(t, "sess-a", row.HolderSessionID)
		assert.Equal(t, now, row.AcquiredAt)
		assert.Equal(t, now+300, row.ExpiresAt)
		assert.Equal(t, now, row.LastActivityAt)
	})

	t.Run("AcquireConflict", func(t *testing.T) {
		store, _ := newStore(t)

		first, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		held, ok, err := store.Acquire(ctx, acquireReq("order-1", "bob", "sess-b", 5*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
		assert.Equal(t, "alice", held.HolderUserID)
		assert.Equal(t, first.ExpiresAt, held.ExpiresAt)

		// The losing attempt must not have touched the row.
		current, err := store.Get(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "sess-a", current.HolderSessionID)
		assert.Equal(t, first.ID, current.ID)
	})

	t.Run("AcquireSameSessionRenews", func(t *testing.T) {
		store, clock := newStore(t)

		first, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(2 * time.Minute)
		second, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.AcquiredAt, second.AcquiredAt)
		assert.Equal(t, clock.Now().Unix()+300, second.ExpiresAt)
		assert.Equal(t, clock.Now().Unix(), second.LastActivityAt)
		assert.Greater(t, second.ExpiresAt, first.ExpiresAt)
	})

	t.Run("AcquireExpiredTakeover", func(t *testing.T) {
		store, clock := newStore(t)

		first, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(5*time.Minute + time.Second)
		second, ok, err := store.Acquire(ctx, acquireReq("order-1", "bob", "sess-b", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, "bob", second.HolderUserID)
		assert.Equal(t, "sess-b", second.HolderSessionID)
		assert.Equal(t, clock.Now().Unix(), second.AcquiredAt)

		current, err := store.Get(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "sess-b", current.HolderSessionID)
	})

	t.Run("RenewExtendsFromNow", func(t *testing.T) {
		store, clock := newStore(t)

		first, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(4 * time.Minute)
		renewed, ok, err := store.Renew(ctx, "order-1", "sess-a", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		// The new expiry counts from the heartbeat, not from the previous expiry.
		assert.Equal(t, clock.Now().Unix()+300, renewed.ExpiresAt)
		assert.Equal(t, first.AcquiredAt, renewed.AcquiredAt)
		assert.Equal(t, first.ID, renewed.ID)
		assert.Equal(t, clock.Now().Unix(), renewed.LastActivityAt)
	})

	t.Run("RenewMissingLock", func(t *testing.T) {
		store, _ := newStore(t)

		row, ok, err := store.Renew(ctx, "order-ghost", "sess-a", 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, row)
	})

	t.Run("RenewForeignSession", func(t *testing.T) {
		store, _ := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = store.Renew(ctx, "order-1", "sess-b", 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RenewExpiredLock", func(t *testing.T) {
		store, clock := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(5*time.Minute + time.Second)
		_, ok, err = store.Renew(ctx, "order-1", "sess-a", 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "a heartbeat must not revive an expired lock")

		// The lapsed resource is up for grabs.
		_, ok, err = store.Acquire(ctx, acquireReq("order-1", "bob", "sess-b", 5*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ReleaseOwn", func(t *testing.T) {
		store, _ := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		released, err := store.Release(ctx, "order-1", "sess-a")
		require.NoError(t, err)
		assert.True(t, released)

		current, err := store.Get(ctx, "order-1")
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("ReleaseForeignSession", func(t *testing.T) {
		store, _ := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		released, err := store.Release(ctx, "order-1", "sess-b")
		require.NoError(t, err)
		assert.False(t, released)

		current, err := store.Get(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "sess-a", current.HolderSessionID)
	})

	t.Run("ReleaseMissing", func(t *testing.T) {
		store, _ := newStore(t)

		released, err := store.Release(ctx, "order-ghost", "sess-a")
		require.NoError(t, err)
		assert.False(t, released)
	})

	t.Run("ReleaseExpiredOwn", func(t *testing.T) {
		store, clock := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// Releasing an already lapsed claim still cleans up the row.
		clock.Advance(6 * time.Minute)
		released, err := store.Release(ctx, "order-1", "sess-a")
		require.NoError(t, err)
		assert.True(t, released)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store, _ := newStore(t)

		row, err := store.Get(ctx, "order-ghost")
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("HeldAtExactExpirySecond", func(t *testing.T) {
		store, clock := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-1", "alice", "sess-a", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// Expiry is strict: at the exact expiry second the lock is still held.
		clock.Advance(5 * time.Minute)
		_, ok, err = store.Acquire(ctx, acquireReq("order-1", "bob", "sess-b", 5*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Renew(ctx, "order-1", "sess-a", 5*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ConcurrentAcquireOneWinner", func(t *testing.T) {
		store, _ := newStore(t)

		const attempts = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, ok, err := store.Acquire(ctx, acquireReq("order-hot", fmt.Sprintf("user-%d", i), fmt.Sprintf("sess-%d", i), time.Minute))
				if err != nil {
					errs <- err
					return
				}
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		assert.EqualValues(t, 1, wins.Load())
	})

	t.Run("ConcurrentTakeoverOneWinner", func(t *testing.T) {
		store, clock := newStore(t)

		_, ok, err := store.Acquire(ctx, acquireReq("order-hot", "sleeper", "sess-sleeper", time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(time.Minute + time.Second)

		type outcome struct {
			won    bool
			user   string
			holder string
		}
		const attempts = 16
		var wg sync.WaitGroup
		results := make(chan outcome, attempts)
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				user := fmt.Sprintf("user-%d", i)
				row, ok, err := store.Acquire(ctx, acquireReq("order-hot", user, fmt.Sprintf("sess-%d", i), time.Minute))
				if err != nil {
					errs <- err
					return
				}
				res := outcome{won: ok, user: user}
				if !ok {
					res.holder = row.HolderUserID
				}
				results <- res
			}(i)
		}
		wg.Wait()
		close(errs)
		close(results)
		for err := range errs {
			require.NoError(t, err)
		}

		var winner string
		var losers []string
		for res := range results {
			if res.won {
				require.Empty(t, winner, "expected exactly one takeover winner")
				winner = res.user
			} else {
				losers = append(losers, res.holder)
			}
		}
		require.NotEmpty(t, winner)
		for _, holder := range losers {
			// Every loser saw the winner's fresh claim, not the lapsed one.
			assert.Equal(t, winner, holder)
		}
	})

	t.Run("EditHandoffScenario", func(t *testing.T) {
		store, clock := newStore(t)

		// An editor opens the order, keeps it alive with one heartbeat,
		// closes it, and a colleague picks it up right away.
		grant, ok, err := store.Acquire(ctx, acquireReq("order-42", "ursula", "sess-u1", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(4 * time.Minute)
		renewed, ok, err := store.Renew(ctx, "order-42", "sess-u1", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, clock.Now().Unix()+300, renewed.ExpiresAt)
		assert.Equal(t, grant.AcquiredAt, renewed.AcquiredAt)

		// Still held, so a colleague is refused meanwhile.
		held, ok, err := store.Acquire(ctx, acquireReq("order-42", "victor", "sess-v1", 5*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
		assert.Equal(t, "ursula", held.HolderUserID)

		clock.Advance(2 * time.Minute)
		released, err := store.Release(ctx, "order-42", "sess-u1")
		require.NoError(t, err)
		require.True(t, released)

		// No expiry wait needed after an explicit release.
		taken, ok, err := store.Acquire(ctx, acquireReq("order-42", "victor", "sess-v1", 5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "victor", taken.HolderUserID)

		current, err := store.Get(ctx, "order-42")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "sess-v1", current.HolderSessionID)
	})
}
