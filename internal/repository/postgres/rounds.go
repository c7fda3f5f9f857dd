package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/models"
)

type roundsRepo struct{ s *Store }

const roundColumns = `
	round_id, auction_id, round_number, start_at, end_at, original_end_at, status, winners_count
`

func scanRound(row pgx.Row) (*models.Round, error) {
	var rd models.Round
	err := row.Scan(
		&rd.RoundID, &rd.AuctionID, &rd.RoundNumber, &rd.StartAt, &rd.EndAt,
		&rd.OriginalEndAt, &rd.Status, &rd.WinnersCount,
	)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r roundsRepo) GetByID(ctx context.Context, roundID string) (*models.Round, error) {
	rd, err := scanRound(r.s.db.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE round_id = $1`, roundID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: round: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get round: %w", err)
	}
	return rd, nil
}

func (r roundsRepo) GetByAuctionAndNumber(ctx context.Context, auctionID string, roundNumber int) (*models.Round, error) {
	rd, err := scanRound(r.s.db.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM rounds WHERE auction_id = $1 AND round_number = $2
	`, auctionID, roundNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: round: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get round by number: %w", err)
	}
	return rd, nil
}

func (r roundsRepo) GetActiveByAuction(ctx context.Context, auctionID string) (*models.Round, error) {
	rd, err := scanRound(r.s.db.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE auction_id = $1 AND status IN ('active', 'processing')
		ORDER BY round_number DESC LIMIT 1
	`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: active round: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get active round: %w", err)
	}
	return rd, nil
}

func (r roundsRepo) ListActive(ctx context.Context) ([]*models.Round, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT `+roundColumns+` FROM rounds WHERE status = 'active' ORDER BY end_at
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active rounds: %w", err)
	}
	defer rows.Close()

	var out []*models.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (r roundsRepo) Create(ctx context.Context, rd *models.Round) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO rounds (round_id, auction_id, round_number, start_at, end_at, original_end_at, status, winners_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rd.RoundID, rd.AuctionID, rd.RoundNumber, rd.StartAt, rd.EndAt, rd.OriginalEndAt, rd.Status, rd.WinnersCount)
	if err != nil {
		return fmt.Errorf("postgres: create round: %w", err)
	}
	return nil
}

func (r roundsRepo) Update(ctx context.Context, rd *models.Round) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE rounds SET end_at = $2, status = $3, winners_count = $4
		WHERE round_id = $1
	`, rd.RoundID, rd.EndAt, rd.Status, rd.WinnersCount)
	if err != nil {
		return fmt.Errorf("postgres: update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update round: %w", apierrors.ErrNotFound)
	}
	return nil
}

func (r roundsRepo) CompareAndSetStatus(ctx context.Context, roundID string, from, to models.RoundStatus) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE rounds SET status = $3 WHERE round_id = $1 AND status = $2
	`, roundID, from, to)
	if err != nil {
		return fmt.Errorf("postgres: cas round status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: cas round status %s->%s: %w", from, to, apierrors.ErrConflict)
	}
	return nil
}
