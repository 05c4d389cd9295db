package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/staff-booking-engine/internal/lock"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, lock.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisLocker(rdb, 10*time.Second)
}

func TestRedisLockerRunsBodyAndReleases(t *testing.T) {
	mr, locker := newTestLocker(t)

	err := locker.WithExclusiveSection(context.Background(), "booking:s1:2026-05-01", time.Second, func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:booking:s1:2026-05-01"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:booking:s1:2026-05-01"))
}

func TestRedisLockerTimesOutWhileHeld(t *testing.T) {
	mr, locker := newTestLocker(t)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	ran := false
	err := locker.WithExclusiveSection(context.Background(), "k", 30*time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.False(t, ran)

	// another holder's key is never deleted by the loser
	val, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestRedisLockerAcquiresAfterRelease(t *testing.T) {
	mr, locker := newTestLocker(t)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		mr.Del("lock:k")
	}()

	err := locker.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
