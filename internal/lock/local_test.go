package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	t.Parallel()
	locker := lock.NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "order:1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locker.Len())
}

func TestLocalIndependentKeys(t *testing.T) {
	t.Parallel()
	locker := lock.NewLocal()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, lock.CartKey(uuid.New()))
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, lock.CartKey(uuid.New()))
	require.NoError(t, err)
	releaseB()
}

func TestLocalAcquireTimeout(t *testing.T) {
	t.Parallel()
	locker := lock.NewLocal()

	release, err := locker.Acquire(context.Background(), "cart:x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "cart:x")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	release()
	release()
	assert.Zero(t, locker.Len())
}
