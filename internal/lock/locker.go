// Package lock serializes workflow steps that touch the same cart or order.
package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive ownership of a key. release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func CartKey(userID uuid.UUID) string {
	return fmt.Sprintf("cart:%s", userID)
}

func OrderKey(orderID uuid.UUID) string {
	return fmt.Sprintf("order:%s", orderID)
}
