package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/models"
)

type auctionsRepo struct{ s *Store }

const auctionColumns = `
	auction_id, name, description, total_items, total_rounds, items_per_round,
	min_bid, current_round, status, start_at, first_round_duration,
	other_round_duration, anti_snipe_window, anti_snipe_extension,
	anti_snipe_threshold, distributed_items, avg_price, created_at
`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	err := row.Scan(
		&a.AuctionID, &a.Name, &a.Description, &a.TotalItems, &a.TotalRounds, &a.ItemsPerRound,
		&a.MinBid, &a.CurrentRound, &a.Status, &a.StartAt, &a.FirstRoundDuration,
		&a.OtherRoundDuration, &a.AntiSnipeWindow, &a.AntiSnipeExtension,
		&a.AntiSnipeThreshold, &a.DistributedItems, &a.AvgPrice, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r auctionsRepo) GetByID(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, err := scanAuction(r.s.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: auction: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get auction: %w", err)
	}
	return a, nil
}

func (r auctionsRepo) List(ctx context.Context) ([]*models.Auction, error) {
	return r.list(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY created_at DESC`)
}

func (r auctionsRepo) ListByStatus(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error) {
	return r.list(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE status = $1 ORDER BY created_at`, status)
}

func (r auctionsRepo) list(ctx context.Context, query string, args ...any) ([]*models.Auction, error) {
	rows, err := r.s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var out []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r auctionsRepo) Create(ctx context.Context, a *models.Auction) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO auctions (
			auction_id, name, description, total_items, total_rounds, items_per_round,
			min_bid, current_round, status, start_at, first_round_duration,
			other_round_duration, anti_snipe_window, anti_snipe_extension,
			anti_snipe_threshold, distributed_items, avg_price
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		a.AuctionID, a.Name, a.Description, a.TotalItems, a.TotalRounds, a.ItemsPerRound,
		a.MinBid, a.CurrentRound, a.Status, a.StartAt, a.FirstRoundDuration,
		a.OtherRoundDuration, a.AntiSnipeWindow, a.AntiSnipeExtension,
		a.AntiSnipeThreshold, a.DistributedItems, a.AvgPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction: %w", err)
	}
	return nil
}

func (r auctionsRepo) Update(ctx context.Context, a *models.Auction) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE auctions SET
			name = $2, description = $3, total_items = $4, total_rounds = $5,
			items_per_round = $6, min_bid = $7, current_round = $8, status = $9,
			distributed_items = $10, avg_price = $11
		WHERE auction_id = $1
	`,
		a.AuctionID, a.Name, a.Description, a.TotalItems, a.TotalRounds,
		a.ItemsPerRound, a.MinBid, a.CurrentRound, a.Status,
		a.DistributedItems, a.AvgPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update auction: %w", apierrors.ErrNotFound)
	}
	return nil
}

func (r auctionsRepo) CompareAndSetStatus(ctx context.Context, auctionID string, from, to models.AuctionStatus) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE auctions SET status = $3 WHERE auction_id = $1 AND status = $2
	`, auctionID, from, to)
	if err != nil {
		return fmt.Errorf("postgres: cas auction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: cas auction status %s->%s: %w", from, to, apierrors.ErrConflict)
	}
	return nil
}
