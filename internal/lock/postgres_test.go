package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPostgres connects to TEST_POSTGRES_DSN and skips when it is unset.
func newTestPostgres(t *testing.T, maxConns int32) *Postgres {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = maxConns

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	return NewPostgres(pool)
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("%s:%d", t.Name(), time.Now().UnixNano())
}

func TestPostgresTimeoutNeverRunsBody(t *testing.T) {
	p := newTestPostgres(t, 4)
	key := testKey(t)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- p.WithExclusiveSection(context.Background(), key, time.Second, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ran := false
	err := p.WithExclusiveSection(context.Background(), key, 50*time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, ran)

	close(release)
	require.NoError(t, <-done)

	// the timed out attempt left nothing behind
	err = p.WithExclusiveSection(context.Background(), key, time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPostgresReleasesOnErrorAndPanic(t *testing.T) {
	p := newTestPostgres(t, 2)
	key := testKey(t)
	boom := errors.New("boom")

	err := p.WithExclusiveSection(context.Background(), key, time.Second, func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = p.WithExclusiveSection(context.Background(), key, time.Second, func(ctx context.Context) error { panic("bad") })
	})

	err = p.WithExclusiveSection(context.Background(), key, 200*time.Millisecond, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, int32(0), p.pool.Stat().AcquiredConns())
}

func TestPostgresWaitersLeaveConnectionsFree(t *testing.T) {
	const maxConns = 3
	p := newTestPostgres(t, maxConns)
	key := testKey(t)

	var (
		wg      sync.WaitGroup
		entered int
		mu      sync.Mutex
	)
	err := p.WithExclusiveSection(context.Background(), key, time.Second, func(ctx context.Context) error {
		// more waiters than the pool has connections
		for i := 0; i < maxConns*3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := p.WithExclusiveSection(context.Background(), key, 5*time.Second, func(ctx context.Context) error {
					mu.Lock()
					entered++
					mu.Unlock()
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		time.Sleep(100 * time.Millisecond)

		// the holder can still open its own transaction
		acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		conn, err := p.pool.Acquire(acquireCtx)
		if err != nil {
			return err
		}
		_, err = conn.Exec(acquireCtx, `SELECT 1`)
		conn.Release()
		if err != nil {
			return err
		}

		// and unrelated keys are not blocked behind the waiters
		return p.WithExclusiveSection(ctx, key+":other", time.Second, func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, maxConns*3, entered)
}
