package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres uses session-level advisory locks. A waiter borrows a pooled
// connection only for each pg_try_advisory_lock attempt; the connection that
// wins stays checked out until the section ends, so the guarded body needs one
// more connection for its own transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// AdvisoryKey maps a lock key to the bigint space of pg_advisory_lock.
func AdvisoryKey(key string) int64 {
	return int64(xxhash.Sum64String(key))
}

func (p *Postgres) WithExclusiveSection(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error {
	id := AdvisoryKey(key)
	deadline := time.Now().Add(timeout)

	var conn *pgxpool.Conn
	for attempt := 0; ; attempt++ {
		c, err := p.tryLock(ctx, id, deadline)
		if err != nil {
			return err
		}
		if c != nil {
			conn = c
			break
		}
		if !time.Now().Before(deadline) {
			return ErrLockTimeout
		}
		wait := min(PollInterval(attempt), time.Until(deadline))
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
	defer conn.Release()

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		var released bool
		err := conn.QueryRow(unlockCtx, `SELECT pg_advisory_unlock($1)`, id).Scan(&released)
		if err != nil || !released {
			// closing the session is the only other way to drop a session lock
			log.Printf("advisory unlock failed key=%s released=%t err=%v, closing connection", key, released, err)
			_ = conn.Conn().Close(unlockCtx)
		}
	}()

	return fn(ctx)
}

// tryLock makes one attempt. It returns the connection holding the lock, or
// nil after handing the connection back to the pool when the lock is taken.
func (p *Postgres) tryLock(ctx context.Context, id int64, deadline time.Time) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithDeadline(ctx, deadline)
	conn, err := p.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no free connection", ErrLockTimeout)
		}
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, nil
	}
	return conn, nil
}
