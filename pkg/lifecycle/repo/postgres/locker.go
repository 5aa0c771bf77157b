package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// AdvisoryLocker implements lifecycle.Locker with session-level Postgres
// advisory locks. Each held lock pins one pool connection until released.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker creates a locker backed by pool.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lock %s: %w", key, err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The session lock must be released even if the caller's ctx is done.
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
				conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}, nil
}

var _ lifecycle.Locker = (*AdvisoryLocker)(nil)
