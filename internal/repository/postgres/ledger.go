package postgres

import (
	"context"
	"fmt"

	"auctionhouse/internal/models"
)

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Append(ctx context.Context, e *models.LedgerEntry) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO ledger_entries (
			entry_id, user_id, kind, amount, auction_id, bid_id, balance_before, balance_after, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.EntryID, e.UserID, e.Kind, e.Amount, e.AuctionID, e.BidID, e.BalanceBefore, e.BalanceAfter, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry: %w", err)
	}
	return nil
}

func (r ledgerRepo) ListByUser(ctx context.Context, userID string) ([]*models.LedgerEntry, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT entry_id, user_id, kind, amount, auction_id, bid_id, balance_before, balance_after, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.EntryID, &e.UserID, &e.Kind, &e.Amount, &e.AuctionID, &e.BidID,
			&e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
