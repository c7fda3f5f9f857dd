package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/internal/apierrors"
)

func TestMemory_WithLock_MutualExclusion(t *testing.T) {
	m := NewMemory(time.Second, time.Millisecond)
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(ctx, "k", time.Second, func(ctx context.Context) error {
				cur := atomic.LoadInt64(&counter)
				time.Sleep(time.Millisecond)
				atomic.StoreInt64(&counter, cur+1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int64(n), counter, "non-atomic read-sleep-write would lose updates without mutual exclusion")
}

func TestMemory_WithLock_ReleasesOnPanicRecovered(t *testing.T) {
	m := NewMemory(time.Second, time.Millisecond)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = m.WithLock(ctx, "k", time.Second, func(ctx context.Context) error {
			panic("boom")
		})
	}()

	acquired := false
	err := m.WithLock(ctx, "k", 100*time.Millisecond, func(ctx context.Context) error {
		acquired = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired, "lock should be releasable after a panicking holder")
}

func TestMemory_WithLock_TimesOut(t *testing.T) {
	m := NewMemory(time.Second, 5*time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "k", time.Second, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the goroutine acquire first

	err := m.WithLock(ctx, "k", 30*time.Millisecond, func(ctx context.Context) error {
		t.Fatal("should not acquire while held")
		return nil
	})
	require.ErrorIs(t, err, apierrors.ErrLockTimeout)
	close(release)
}

func TestMemory_WithLock_RespectsContextCancellation(t *testing.T) {
	m := NewMemory(time.Second, 5*time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "k", time.Second, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	cctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := m.WithLock(cctx, "k", time.Minute, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestMemory_WithLock_IndependentKeys(t *testing.T) {
	m := NewMemory(time.Second, time.Millisecond)
	ctx := context.Background()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "k1", time.Second, func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "k2", time.Second, func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
	close(block)
}
