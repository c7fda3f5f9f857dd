// Package postgres implements the repository.Store contract over
// PostgreSQL via pgx's native pool, for clustered deployments where
// multiple workers share one database (spec.md §6.3, §9). Grounded on
// the teacher's economy.Repository (transactional balance mutation with
// FOR UPDATE row locking) and the pack's pgxpool bootstrap pattern.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auctionhouse/internal/repository"
)

// Schema creates every table and index this backend needs. Applied by
// `auctionctl migrate`.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	available  BIGINT NOT NULL DEFAULT 0,
	frozen     BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS auctions (
	auction_id            TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	total_items           INT NOT NULL,
	total_rounds          INT NOT NULL,
	items_per_round       INT NOT NULL,
	min_bid               BIGINT NOT NULL,
	current_round         INT NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	start_at              TIMESTAMPTZ NOT NULL,
	first_round_duration  BIGINT NOT NULL,
	other_round_duration  BIGINT NOT NULL,
	anti_snipe_window     BIGINT NOT NULL,
	anti_snipe_extension  BIGINT NOT NULL,
	anti_snipe_threshold  INT NOT NULL,
	distributed_items     INT NOT NULL DEFAULT 0,
	avg_price             DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS auctions_status_idx ON auctions (status);

CREATE TABLE IF NOT EXISTS rounds (
	round_id        TEXT PRIMARY KEY,
	auction_id      TEXT NOT NULL REFERENCES auctions (auction_id),
	round_number    INT NOT NULL,
	start_at        TIMESTAMPTZ NOT NULL,
	end_at          TIMESTAMPTZ NOT NULL,
	original_end_at TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	winners_count   INT NOT NULL DEFAULT 0,
	UNIQUE (auction_id, round_number)
);
CREATE INDEX IF NOT EXISTS rounds_auction_status_idx ON rounds (auction_id, status);
CREATE INDEX IF NOT EXISTS rounds_status_end_at_idx ON rounds (status, end_at);

CREATE TABLE IF NOT EXISTS bids (
	bid_id       TEXT PRIMARY KEY,
	auction_id   TEXT NOT NULL REFERENCES auctions (auction_id),
	round_id     TEXT NOT NULL REFERENCES rounds (round_id),
	user_id      TEXT NOT NULL REFERENCES users (user_id),
	amount       BIGINT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	won_in_round INT,
	item_number  INT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (round_id, user_id)
);
CREATE INDEX IF NOT EXISTS bids_round_rank_idx ON bids (round_id, amount DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS bids_user_idx ON bids (user_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	entry_id       TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users (user_id),
	kind           TEXT NOT NULL,
	amount         BIGINT NOT NULL,
	auction_id     TEXT,
	bid_id         TEXT,
	balance_before BIGINT NOT NULL,
	balance_after  BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_user_idx ON ledger_entries (user_id, created_at DESC);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repo method run unmodified whether or not it's inside WithTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed repository.Store. The zero value is
// invalid; use New.
type Store struct {
	pool *pgxpool.Pool
	db   querier // pool, or the active tx inside WithTx
}

// New creates a Store over pool. Apply Schema once at startup (or via
// `auctionctl migrate`) before using it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Users() repository.Users       { return usersRepo{s} }
func (s *Store) Auctions() repository.Auctions { return auctionsRepo{s} }
func (s *Store) Rounds() repository.Rounds     { return roundsRepo{s} }
func (s *Store) Bids() repository.Bids         { return bidsRepo{s} }
func (s *Store) Ledger() repository.Ledger     { return ledgerRepo{s} }

// WithTx runs fn against a Store whose querier is a single pgx
// transaction, committed on success and rolled back on any error or
// panic, mirroring the teacher's Begin/defer Rollback/Commit shape.
// Nested inside an already-open transaction it just runs fn against s:
// pgx has no nested transactions, and the enclosing WithTx already
// established the atomic section (mirrors memory.txStore.WithTx).
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	if _, alreadyInTx := s.db.(pgx.Tx); alreadyInTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := &Store{pool: s.pool, db: tx}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}
