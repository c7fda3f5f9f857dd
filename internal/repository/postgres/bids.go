package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/models"
)

type bidsRepo struct{ s *Store }

const bidColumns = `
	bid_id, auction_id, round_id, user_id, amount, status, won_in_round, item_number, created_at
`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(
		&b.BidID, &b.AuctionID, &b.RoundID, &b.UserID, &b.Amount, &b.Status,
		&b.WonInRound, &b.ItemNumber, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r bidsRepo) GetByRoundAndUser(ctx context.Context, roundID, userID string) (*models.Bid, error) {
	b, err := scanBid(r.s.db.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE round_id = $1 AND user_id = $2
	`, roundID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: bid: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get bid: %w", err)
	}
	return b, nil
}

// ListActiveByRoundRanked relies on the database's own sort, using the
// bids_round_rank_idx index covering (round_id, amount DESC, created_at
// ASC) — the same tie-break order the in-memory backend sorts with.
func (r bidsRepo) ListActiveByRoundRanked(ctx context.Context, roundID string) ([]*models.Bid, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE round_id = $1 AND status = 'active'
		ORDER BY amount DESC, created_at ASC
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ranked bids: %w", err)
	}
	defer rows.Close()
	return scanBids(rows)
}

func (r bidsRepo) ListByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user bids: %w", err)
	}
	defer rows.Close()
	return scanBids(rows)
}

func (r bidsRepo) ListWonByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE user_id = $1 AND status = 'won' ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list won bids: %w", err)
	}
	defer rows.Close()
	return scanBids(rows)
}

func scanBids(rows pgx.Rows) ([]*models.Bid, error) {
	var out []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r bidsRepo) CountActiveByRound(ctx context.Context, roundID string) (int, error) {
	var n int
	err := r.s.db.QueryRow(ctx, `
		SELECT count(*) FROM bids WHERE round_id = $1 AND status = 'active'
	`, roundID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active bids: %w", err)
	}
	return n, nil
}

func (r bidsRepo) Create(ctx context.Context, b *models.Bid) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO bids (bid_id, auction_id, round_id, user_id, amount, status, won_in_round, item_number, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, b.BidID, b.AuctionID, b.RoundID, b.UserID, b.Amount, b.Status, b.WonInRound, b.ItemNumber, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create bid: %w", err)
	}
	return nil
}

func (r bidsRepo) Update(ctx context.Context, b *models.Bid) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE bids SET amount = $2, status = $3, won_in_round = $4, item_number = $5
		WHERE bid_id = $1
	`, b.BidID, b.Amount, b.Status, b.WonInRound, b.ItemNumber)
	if err != nil {
		return fmt.Errorf("postgres: update bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update bid: %w", apierrors.ErrNotFound)
	}
	return nil
}
