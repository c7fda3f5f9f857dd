// Package lock implements the key-scoped distributed lock (spec.md §4.2).
// Locker.WithLock holds mutual exclusion on a key until fn returns or
// panics, then releases — safely, only if the caller still owns the lock.
// Two backends: Memory (single process, embedded deployments and tests)
// and, in internal/lock/postgres.go, a PostgreSQL session-advisory-lock
// backend for clustered, multi-worker deployments.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/idgen"
)

// Locker is the distributed-lock contract every caller depends on.
type Locker interface {
	// WithLock acquires key, runs fn, and releases key — even if fn
	// panics. Acquisition retries with backoff until acquireTimeout
	// elapses, at which point it returns apierrors.ErrLockTimeout.
	WithLock(ctx context.Context, key string, acquireTimeout time.Duration, fn func(ctx context.Context) error) error
}

// BidKey returns the per-(auction,user) lock key used to serialize bid
// admission (spec.md §4.2).
func BidKey(auctionID, userID string) string {
	return fmt.Sprintf("bid:%s:%s", auctionID, userID)
}

// RoundKey returns the per-round lock key used to serialize settlement.
func RoundKey(roundID string) string {
	return fmt.Sprintf("round:%s", roundID)
}

// entry tracks one held lock: its owner token and expiry, used to make
// release safe — a holder only releases if it is still the recorded
// owner, so an expired TTL can never be released out from under a newer
// holder (spec.md §4.2 "safe release").
type entry struct {
	owner   string
	expires time.Time
}

// Memory is an in-process Locker keyed by string, suitable for embedded
// deployments and unit tests where all workers share one process.
type Memory struct {
	mu    sync.Mutex
	held  map[string]*entry
	ttl   time.Duration
	retry time.Duration
}

// NewMemory creates an in-process lock with the given TTL (the maximum
// time fn may run before another acquirer could consider the lock
// abandoned) and retry backoff between acquisition attempts.
func NewMemory(ttl, retry time.Duration) *Memory {
	return &Memory{held: make(map[string]*entry), ttl: ttl, retry: retry}
}

func (m *Memory) tryAcquire(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if e, ok := m.held[key]; ok && e.expires.After(now) {
		return false
	}
	m.held[key] = &entry{owner: owner, expires: now.Add(m.ttl)}
	return true
}

func (m *Memory) release(key, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.held[key]; ok && e.owner == owner {
		delete(m.held, key)
	}
}

// WithLock implements Locker.
func (m *Memory) WithLock(ctx context.Context, key string, acquireTimeout time.Duration, fn func(ctx context.Context) error) error {
	owner := idgen.New()
	deadline := time.Now().Add(acquireTimeout)
	for {
		if m.tryAcquire(key, owner) {
			defer m.release(key, owner)
			return fn(ctx)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: acquire %s: %w", key, apierrors.ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock: acquire %s: %w", key, ctx.Err())
		case <-time.After(m.retry):
		}
	}
}
