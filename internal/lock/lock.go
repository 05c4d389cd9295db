package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLockTimeout means the section was never entered: the lock was not
	// acquired within the wait budget and fn did not run.
	ErrLockTimeout = errors.New("exclusive section lock not acquired before timeout")
)

// Locker guards critical sections keyed by an arbitrary string. fn runs only
// while the lock is held, and the lock is released when fn returns or panics.
type Locker interface {
	WithExclusiveSection(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error
}

// Nop runs fn without any mutual exclusion. It exists for tests that exercise
// storage-level uniqueness fallbacks.
type Nop struct{}

func (Nop) WithExclusiveSection(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// PollInterval is the backoff between attempts for lockers that can only try.
func PollInterval(attempt int) time.Duration {
	return 5 * time.Millisecond << min(attempt, 4)
}

// Sleep waits for d unless ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
