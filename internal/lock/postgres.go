package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"auctionhouse/internal/apierrors"
)

// Postgres is a Locker backed by PostgreSQL session-scoped advisory locks
// (pg_advisory_lock/pg_advisory_unlock), giving cross-worker mutual
// exclusion for clustered deployments (spec.md §4.2) from the same driver
// already used for persistence. The lock is held by pinning one pool
// connection for the duration of fn — advisory locks are scoped to the
// session that took them, so the unlock must happen on that exact
// connection (grounded on the pinned-connection pattern the pack's
// Postgres examples use for row-level FOR UPDATE transactions).
type Postgres struct {
	pool  *pgxpool.Pool
	retry time.Duration
}

// NewPostgres creates a Postgres-backed Locker over pool.
func NewPostgres(pool *pgxpool.Pool, retry time.Duration) *Postgres {
	return &Postgres{pool: pool, retry: retry}
}

// lockKeyHash maps an arbitrary string key to the int64 advisory-lock
// namespace Postgres expects.
func lockKeyHash(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// WithLock implements Locker using pg_try_advisory_lock in a poll loop
// (Postgres has no advisory-lock-with-timeout primitive), retrying with
// backoff until acquireTimeout elapses.
func (p *Postgres) WithLock(ctx context.Context, key string, acquireTimeout time.Duration, fn func(ctx context.Context) error) error {
	keyHash := lockKeyHash(key)
	deadline := time.Now().Add(acquireTimeout)

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock: acquire connection for %s: %w", key, apierrors.ErrTransient)
	}
	defer conn.Release()

	for {
		var acquired bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", keyHash).Scan(&acquired); err != nil {
			return fmt.Errorf("lock: try advisory lock %s: %w", key, apierrors.ErrTransient)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: acquire %s: %w", key, apierrors.ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock: acquire %s: %w", key, ctx.Err())
		case <-time.After(p.retry):
		}
	}

	defer func() {
		// Best-effort release on the same pinned connection. If the
		// connection died mid-critical-section, Postgres drops the
		// session-scoped lock automatically on disconnect, so there is
		// no unsafe-release risk here the way there is for the in-memory
		// backend's TTL expiry.
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", keyHash)
	}()

	return fn(ctx)
}
