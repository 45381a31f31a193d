package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatLockKeys(t *testing.T) {
	assert.Equal(t, "lock:7:r1c2", SeatLockKey("7", "R1C2"))
	assert.Equal(t, "session:S1:event:7", SessionIndexKey("S1", "7"))
}

func TestSeatLockRegistry_AcquireIsIdempotentForOwner(t *testing.T) {
	store, mr := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, time.Minute)
	ctx := context.Background()

	ok, err := reg.Acquire(ctx, "7", "S1", "r1c1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(40 * time.Second)
	ok, err = reg.Acquire(ctx, "7", "S1", "r1c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("lock:7:r1c1"))

	owner, held, err := reg.OwnerOf(ctx, "7", "r1c1")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "S1", owner)
}

func TestSeatLockRegistry_OtherSessionCannotAcquire(t *testing.T) {
	store, _ := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, time.Minute)
	ctx := context.Background()

	_, err := reg.Acquire(ctx, "7", "S1", "r1c1")
	require.NoError(t, err)

	ok, err := reg.Acquire(ctx, "7", "S2", "r1c1")
	require.NoError(t, err)
	assert.False(t, ok)

	owner, _, err := reg.OwnerOf(ctx, "7", "r1c1")
	require.NoError(t, err)
	assert.Equal(t, "S1", owner)
}

func TestSeatLockRegistry_ConcurrentAcquireSingleWinner(t *testing.T) {
	store, _ := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, time.Minute)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := reg.Acquire(ctx, "7", fmt.Sprintf("S%d", i), "r5c5")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestSeatLockRegistry_ReleaseIfOwner(t *testing.T) {
	store, _ := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, time.Minute)
	ctx := context.Background()

	_, err := reg.Acquire(ctx, "7", "S1", "r1c1")
	require.NoError(t, err)

	released, err := reg.ReleaseIfOwner(ctx, "7", "S2", "r1c1")
	require.NoError(t, err)
	assert.False(t, released)
	owner, held, _ := reg.OwnerOf(ctx, "7", "r1c1")
	assert.True(t, held)
	assert.Equal(t, "S1", owner)

	released, err = reg.ReleaseIfOwner(ctx, "7", "S1", "r1c1")
	require.NoError(t, err)
	assert.True(t, released)
	_, held, _ = reg.OwnerOf(ctx, "7", "r1c1")
	assert.False(t, held)
}

func TestSeatLockRegistry_ReleaseAllSkipsSeatsTakenByOthers(t *testing.T) {
	store, mr := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, time.Minute)
	ctx := context.Background()

	for _, seat := range []string{"r1c1", "r1c2", "r1c3"} {
		ok, err := reg.Acquire(ctx, "7", "S1", seat)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// r1c3 expires and is taken by S2; the stale index entry must not free it
	mr.Del("lock:7:r1c3")
	ok, err := reg.Acquire(ctx, "7", "S2", "r1c3")
	require.NoError(t, err)
	require.True(t, ok)

	released, err := reg.ReleaseAll(ctx, "7", "S1")
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.False(t, mr.Exists("session:S1:event:7"))

	owner, held, err := reg.OwnerOf(ctx, "7", "r1c3")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "S2", owner)
}

func TestSeatLockRegistry_ReleaseAllWithoutIndex(t *testing.T) {
	store, _ := newTestLockStore(t)
	reg := NewSeatLockRegistry(store, 0)
	assert.Equal(t, DefaultSeatLockTTL, reg.TTL())

	released, err := reg.ReleaseAll(context.Background(), "7", "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}
