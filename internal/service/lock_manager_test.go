package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockManagerAllowsSingleHolder(t *testing.T) {
	locks := NewMemoryLockManager()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := locks.TryAcquire(ctx, "sub_guide")
			require.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins)
	require.True(t, locks.Held("sub_guide"))

	require.NoError(t, locks.Release(ctx, "sub_guide"))
	ok, err := locks.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockManagerSharesLeaseAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := NewRedisLockManager(client, "test:lock", time.Minute, zerolog.Nop())
	second := NewRedisLockManager(client, "test:lock", time.Minute, zerolog.Nop())
	ctx := context.Background()

	ok, err := first.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.False(t, ok, "another instance must not acquire a held key")

	// Releasing a key this instance never held must not drop the lease.
	require.NoError(t, second.Release(ctx, "sub_guide"))
	require.True(t, mr.Exists("test:lock:sub_guide"))

	require.NoError(t, first.Release(ctx, "sub_guide"))
	require.False(t, mr.Exists("test:lock:sub_guide"))

	ok, err = second.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockManagerLeaseExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locks := NewRedisLockManager(client, "test:lock", time.Second, zerolog.Nop())
	ctx := context.Background()

	ok, err := locks.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	other := NewRedisLockManager(client, "test:lock", time.Second, zerolog.Nop())
	ok, err = other.TryAcquire(ctx, "sub_guide")
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must leave the new lease in place.
	require.NoError(t, locks.Release(ctx, "sub_guide"))
	require.True(t, mr.Exists("test:lock:sub_guide"))
}
