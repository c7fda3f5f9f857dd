// Package repository defines the persistence contract the core consumes
// (spec.md §6.3). Two backends implement it: an in-memory store
// (internal/repository/memory) for embedded deployments and tests, and a
// PostgreSQL store (internal/repository/postgres) for clustered,
// multi-worker deployments.
package repository

import (
	"context"

	"auctionhouse/internal/models"
)

// Users persists User aggregates. Balance fields are mutated only through
// UpdateBalances, called exclusively by the wallet ledger inside a
// WithTx — every other caller treats balances as read-only.
type Users interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// GetOrCreate returns the existing user for username, or creates one
	// with zero balances. The second return value is true if created.
	GetOrCreate(ctx context.Context, userID, username string) (*models.User, bool, error)
	UpdateBalances(ctx context.Context, userID string, available, frozen int64) error
}

// Auctions persists Auction aggregates.
type Auctions interface {
	GetByID(ctx context.Context, auctionID string) (*models.Auction, error)
	List(ctx context.Context) ([]*models.Auction, error)
	ListByStatus(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error)
	Create(ctx context.Context, a *models.Auction) error
	Update(ctx context.Context, a *models.Auction) error
	// CompareAndSetStatus atomically transitions status from `from` to
	// `to`, returning apierrors.ErrConflict if the current status isn't
	// `from`.
	CompareAndSetStatus(ctx context.Context, auctionID string, from, to models.AuctionStatus) error
}

// Rounds persists Round aggregates.
type Rounds interface {
	GetByID(ctx context.Context, roundID string) (*models.Round, error)
	GetByAuctionAndNumber(ctx context.Context, auctionID string, roundNumber int) (*models.Round, error)
	GetActiveByAuction(ctx context.Context, auctionID string) (*models.Round, error)
	ListActive(ctx context.Context) ([]*models.Round, error)
	Create(ctx context.Context, r *models.Round) error
	Update(ctx context.Context, r *models.Round) error
	// CompareAndSetStatus atomically transitions status from `from` to
	// `to`. Used to gate settlement (spec.md §4.6 step 1).
	CompareAndSetStatus(ctx context.Context, roundID string, from, to models.RoundStatus) error
}

// Bids persists Bid aggregates.
type Bids interface {
	GetByRoundAndUser(ctx context.Context, roundID, userID string) (*models.Bid, error)
	// ListActiveByRoundRanked returns active bids for a round ordered by
	// (amount DESC, createdAt ASC) — the tie-break order used throughout
	// the spec.
	ListActiveByRoundRanked(ctx context.Context, roundID string) ([]*models.Bid, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Bid, error)
	ListWonByUser(ctx context.Context, userID string) ([]*models.Bid, error)
	CountActiveByRound(ctx context.Context, roundID string) (int, error)
	Create(ctx context.Context, b *models.Bid) error
	Update(ctx context.Context, b *models.Bid) error
}

// Ledger persists append-only LedgerEntry rows.
type Ledger interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
	ListByUser(ctx context.Context, userID string) ([]*models.LedgerEntry, error)
}

// TxFunc is a unit of work run under a repository transaction, when the
// backend supports one. Embedded/in-memory backends run it under a single
// mutex; the Postgres backend runs it inside one SQL transaction.
type TxFunc func(ctx context.Context, tx Store) error

// Store aggregates all five repositories plus a transaction runner, so
// settlement (spec.md §4.6 steps 4-8) can commit as a single unit when the
// backend supports it.
type Store interface {
	Users() Users
	Auctions() Auctions
	Rounds() Rounds
	Bids() Bids
	Ledger() Ledger

	// WithTx runs fn under a transaction. If the underlying engine does not
	// support multi-document transactions, implementations must still make
	// fn's effects atomic with respect to other WithTx callers (spec.md §9
	// open question) — never silently fall back to best-effort writes.
	WithTx(ctx context.Context, fn TxFunc) error
}
