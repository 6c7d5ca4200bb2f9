package service

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/lock"
)

const defaultLockWait = 5 * time.Second

// withLock runs fn while holding key. Failing to get the lock in time is a
// retryable condition for the caller.
func withLock(ctx context.Context, locker lock.Locker, wait time.Duration, key string, fn func() error) error {
	if wait <= 0 {
		wait = defaultLockWait
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	release, err := locker.Acquire(lockCtx, key)
	if err != nil {
		return domain.Unavailable("acquire lock "+key, err)
	}
	defer release()

	return fn()
}
