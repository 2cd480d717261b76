// Package lock serializes work that must run on a single instance at a time, such as
// migrations and polling of due jobs.
package lock

import (
	"context"
	"errors"
)

var ErrLockNotHeld = errors.New("lock not held by this manager")

type DistributedLockManager interface {
	// Acquire blocks until lockID is held or ctx is done.
	Acquire(ctx context.Context, lockID int) error

	// TryAcquire takes lockID if it is free and reports whether it did.
	TryAcquire(ctx context.Context, lockID int) (bool, error)

	// Release frees a lock taken by Acquire or TryAcquire.
	Release(ctx context.Context, lockID int) error
}
