// Package wallet implements the wallet ledger: the sole owner of balance
// mutations (spec.md §3 ownership, §4.1). Every operation writes exactly
// one append-only models.LedgerEntry atomically with the balance update,
// by running inside the store's WithTx.
package wallet

import (
	"context"
	"fmt"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/idgen"
	"auctionhouse/internal/models"
	"auctionhouse/internal/repository"
)

// Ledger is the wallet ledger service.
type Ledger struct {
	store repository.Store
}

// New creates a wallet ledger backed by store.
func New(store repository.Store) *Ledger {
	return &Ledger{store: store}
}

// WithStore returns a Ledger bound to store instead of l's own store,
// for callers that already hold an open transaction (e.g. round
// settlement) and need wallet mutations to land inside it rather than
// opening a second, independent one. Each wallet method still calls
// WithTx; backends treat that as a no-op when store is already
// transactional.
func (l *Ledger) WithStore(store repository.Store) *Ledger {
	return &Ledger{store: store}
}

// Deposit increases a user's available balance. a must be > 0.
func (l *Ledger) Deposit(ctx context.Context, userID string, a int64) (*models.User, error) {
	if a <= 0 {
		return nil, fmt.Errorf("wallet: deposit %s: %w - amount must be positive", userID, apierrors.ErrInsufficientFunds)
	}
	var updated *models.User
	err := l.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("wallet: deposit %s: %w", userID, err)
		}
		before := u.Available
		after := before + a
		if err := tx.Users().UpdateBalances(ctx, userID, after, u.Frozen); err != nil {
			return fmt.Errorf("wallet: deposit %s: %w", userID, err)
		}
		if err := l.appendEntry(ctx, tx, userID, models.LedgerDeposit, a, nil, nil, before, after); err != nil {
			return err
		}
		updated = u
		updated.Available = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Freeze reserves a from the user's available balance against a bid.
// Fails with ErrInsufficientFunds if available < a, observable by the
// caller before any bid is written (spec.md §4.1).
func (l *Ledger) Freeze(ctx context.Context, userID string, a int64, auctionID, bidID string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("wallet: freeze %s: %w", userID, err)
		}
		if u.Available < a {
			return fmt.Errorf("wallet: freeze %s: %w", userID, apierrors.ErrInsufficientFunds)
		}
		beforeAvail := u.Available
		newAvail := beforeAvail - a
		newFrozen := u.Frozen + a
		if err := tx.Users().UpdateBalances(ctx, userID, newAvail, newFrozen); err != nil {
			return fmt.Errorf("wallet: freeze %s: %w", userID, err)
		}
		return l.appendEntry(ctx, tx, userID, models.LedgerFreeze, a, strPtr(auctionID), strPtr(bidID), beforeAvail, newAvail)
	})
}

// Unfreeze reverses a Freeze: moves a back from frozen to available.
func (l *Ledger) Unfreeze(ctx context.Context, userID string, a int64, auctionID, bidID string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("wallet: unfreeze %s: %w", userID, err)
		}
		if u.Frozen < a {
			return fmt.Errorf("wallet: unfreeze %s: %w", userID, apierrors.ErrInsufficientFunds)
		}
		beforeAvail := u.Available
		newAvail := beforeAvail + a
		newFrozen := u.Frozen - a
		if err := tx.Users().UpdateBalances(ctx, userID, newAvail, newFrozen); err != nil {
			return fmt.Errorf("wallet: unfreeze %s: %w", userID, err)
		}
		return l.appendEntry(ctx, tx, userID, models.LedgerUnfreeze, a, strPtr(auctionID), strPtr(bidID), beforeAvail, newAvail)
	})
}

// ConsumeWin spends a frozen amount: the user won the item at that price.
func (l *Ledger) ConsumeWin(ctx context.Context, userID string, a int64, auctionID, bidID string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("wallet: consume win %s: %w", userID, err)
		}
		if u.Frozen < a {
			return fmt.Errorf("wallet: consume win %s: %w", userID, apierrors.ErrInvariant)
		}
		newFrozen := u.Frozen - a
		if err := tx.Users().UpdateBalances(ctx, userID, u.Available, newFrozen); err != nil {
			return fmt.Errorf("wallet: consume win %s: %w", userID, err)
		}
		return l.appendEntry(ctx, tx, userID, models.LedgerWin, a, strPtr(auctionID), strPtr(bidID), u.Available, u.Available)
	})
}

// Refund releases a frozen amount back to available for a losing bid.
func (l *Ledger) Refund(ctx context.Context, userID string, a int64, auctionID, bidID string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("wallet: refund %s: %w", userID, err)
		}
		if u.Frozen < a {
			return fmt.Errorf("wallet: refund %s: %w", userID, apierrors.ErrInvariant)
		}
		beforeAvail := u.Available
		newAvail := beforeAvail + a
		newFrozen := u.Frozen - a
		if err := tx.Users().UpdateBalances(ctx, userID, newAvail, newFrozen); err != nil {
			return fmt.Errorf("wallet: refund %s: %w", userID, err)
		}
		return l.appendEntry(ctx, tx, userID, models.LedgerRefund, a, strPtr(auctionID), strPtr(bidID), beforeAvail, newAvail)
	})
}

func (l *Ledger) appendEntry(ctx context.Context, tx repository.Store, userID string, kind models.LedgerKind, amount int64, auctionID, bidID *string, before, after int64) error {
	e := &models.LedgerEntry{
		EntryID:       idgen.New(),
		UserID:        userID,
		Kind:          kind,
		Amount:        amount,
		AuctionID:     auctionID,
		BidID:         bidID,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.Ledger().Append(ctx, e); err != nil {
		return fmt.Errorf("wallet: append ledger entry for %s: %w", userID, err)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
