package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easyvol/csvimport/internal/core"
)

const lockPollInterval = 250 * time.Millisecond

// AdvisoryLocker serializes jobs of one import type across processes
// with session-level advisory locks. Each held lock pins one pooled
// connection until unlock.
type AdvisoryLocker struct {
	pool    *pgxpool.Pool
	maxWait time.Duration
}

// NewAdvisoryLocker creates a locker that polls for at most maxWait.
func NewAdvisoryLocker(pool *pgxpool.Pool, maxWait time.Duration) *AdvisoryLocker {
	if maxWait <= 0 {
		maxWait = core.DefaultLockWait
	}
	return &AdvisoryLocker{pool: pool, maxWait: maxWait}
}

var _ core.JobLocker = (*AdvisoryLocker)(nil)

func lockKey(t core.ImportType) string {
	return "csvimport:" + string(t)
}

// Lock takes the advisory lock for t.
// Returns core.ErrImportBusy if maxWait expires, ctx.Err() if ctx ends first.
func (l *AdvisoryLocker) Lock(ctx context.Context, t core.ImportType) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", Classify(err))
	}

	key := lockKey(t)
	deadline := time.NewTimer(l.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		var got bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&got); err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock: %w", Classify(err))
		}
		if got {
			var once sync.Once
			return func() {
				once.Do(func() { unlock(conn, key) })
			}, nil
		}

		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-deadline.C:
			conn.Release()
			return nil, core.ErrImportBusy
		case <-ticker.C:
		}
	}
}

func unlock(conn *pgxpool.Conn, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
		// The session still holds the lock; close it rather than return it to the pool.
		_ = conn.Hijack().Close(ctx)
		return
	}
	conn.Release()
}
