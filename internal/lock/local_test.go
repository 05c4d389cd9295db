package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithExclusiveSection(context.Background(), "staff:1:2026-05-01", 2*time.Second, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocalTimeoutNeverRunsBody(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ran := false
	err := l.WithExclusiveSection(context.Background(), "k", 20*time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, ran)

	close(release)

	// the timed out attempt left nothing behind
	err = l.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestLocalReleasesOnErrorAndPanic(t *testing.T) {
	l := NewLocal()
	boom := errors.New("boom")

	err := l.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = l.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error { panic("bad") })
	})

	err = l.WithExclusiveSection(context.Background(), "k", 50*time.Millisecond, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestLocalKeysAreIndependent(t *testing.T) {
	l := NewLocal()

	err := l.WithExclusiveSection(context.Background(), "a", time.Second, func(ctx context.Context) error {
		return l.WithExclusiveSection(ctx, "b", 50*time.Millisecond, func(ctx context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestLocalCallerCancellation(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = l.WithExclusiveSection(context.Background(), "k", time.Second, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.WithExclusiveSection(ctx, "k", time.Second, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvisoryKeyIsStable(t *testing.T) {
	assert.Equal(t, AdvisoryKey("booking:a:2026-05-01"), AdvisoryKey("booking:a:2026-05-01"))
	assert.NotEqual(t, AdvisoryKey("booking:a:2026-05-01"), AdvisoryKey("booking:a:2026-05-02"))
}

func TestPollIntervalIsBounded(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, PollInterval(0))
	assert.Equal(t, 80*time.Millisecond, PollInterval(10))
}
