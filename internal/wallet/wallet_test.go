package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/repository/memory"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	store := memory.New()
	u, _, err := store.Users().GetOrCreate(context.Background(), "u1", "alice")
	require.NoError(t, err)
	return New(store), u.UserID
}

func TestLedger_Deposit(t *testing.T) {
	l, userID := newTestLedger(t)
	ctx := context.Background()

	u, err := l.Deposit(ctx, userID, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), u.Available)

	_, err = l.Deposit(ctx, userID, 0)
	require.ErrorIs(t, err, apierrors.ErrInsufficientFunds)
	_, err = l.Deposit(ctx, userID, -5)
	require.ErrorIs(t, err, apierrors.ErrInsufficientFunds)

	entries, err := l.store.Ledger().ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(0), entries[0].BalanceBefore)
	require.Equal(t, int64(100), entries[0].BalanceAfter)
}

func TestLedger_FreezeAndUnfreeze(t *testing.T) {
	l, userID := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Deposit(ctx, userID, 100)
	require.NoError(t, err)

	require.NoError(t, l.Freeze(ctx, userID, 40, "a1", "b1"))
	u, err := l.store.Users().GetByID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(60), u.Available)
	require.Equal(t, int64(40), u.Frozen)

	err = l.Freeze(ctx, userID, 1000, "a1", "b2")
	require.ErrorIs(t, err, apierrors.ErrInsufficientFunds)

	require.NoError(t, l.Unfreeze(ctx, userID, 40, "a1", "b1"))
	u, err = l.store.Users().GetByID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(100), u.Available)
	require.Equal(t, int64(0), u.Frozen)

	err = l.Unfreeze(ctx, userID, 10, "a1", "b1")
	require.ErrorIs(t, err, apierrors.ErrInsufficientFunds)
}

func TestLedger_ConsumeWinAndRefund(t *testing.T) {
	l, userID := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Deposit(ctx, userID, 100)
	require.NoError(t, err)
	require.NoError(t, l.Freeze(ctx, userID, 60, "a1", "b1"))

	require.NoError(t, l.ConsumeWin(ctx, userID, 40, "a1", "b1"))
	u, err := l.store.Users().GetByID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(40), u.Available)
	require.Equal(t, int64(20), u.Frozen)

	require.NoError(t, l.Refund(ctx, userID, 20, "a1", "b2"))
	u, err = l.store.Users().GetByID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(60), u.Available)
	require.Equal(t, int64(0), u.Frozen)

	require.ErrorIs(t, l.ConsumeWin(ctx, userID, 1, "a1", "b3"), apierrors.ErrInvariant)
	require.ErrorIs(t, l.Refund(ctx, userID, 1, "a1", "b3"), apierrors.ErrInvariant)
}

// TestLedger_MoneyInvariant exercises deposits + freezes + wins + refunds
// concurrently and checks: available + frozen + total consumed by wins ==
// total deposited, for every user, after everything settles.
func TestLedger_MoneyInvariant(t *testing.T) {
	store := memory.New()
	l := New(store)
	ctx := context.Background()

	const nUsers = 5
	userIDs := make([]string, nUsers)
	for i := 0; i < nUsers; i++ {
		id := string(rune('a' + i))
		_, _, err := store.Users().GetOrCreate(ctx, id, id)
		require.NoError(t, err)
		userIDs[i] = id
		_, err = l.Deposit(ctx, id, 1000)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range userIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Freeze(ctx, id, 100, "a1", "b-"+id); err != nil {
				return
			}
			// half the users "win" and consume, half get refunded
			if id < "c" {
				_ = l.ConsumeWin(ctx, id, 100, "a1", "b-"+id)
			} else {
				_ = l.Refund(ctx, id, 100, "a1", "b-"+id)
			}
		}()
	}
	wg.Wait()

	var totalConsumed int64
	for _, id := range userIDs {
		u, err := store.Users().GetByID(ctx, id)
		require.NoError(t, err)
		entries, err := l.store.Ledger().ListByUser(ctx, id)
		require.NoError(t, err)
		var consumed int64
		for _, e := range entries {
			if e.Kind == "win" {
				consumed += e.Amount
			}
		}
		totalConsumed += consumed
		require.Equal(t, int64(1000), u.Available+u.Frozen+consumed, "money invariant violated for %s", id)
	}
	require.Equal(t, int64(200), totalConsumed)
}
