package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/models"
)

type usersRepo struct{ s *Store }

// GetByID locks the row FOR UPDATE so every wallet read-modify-write
// (Deposit/Freeze/Unfreeze/ConsumeWin/Refund) serializes against
// concurrent mutations of the same user's balance, inside whatever
// transaction the caller is in.
func (r usersRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return r.scanOne(ctx, `
		SELECT user_id, username, available, frozen, created_at
		FROM users WHERE user_id = $1 FOR UPDATE
	`, userID)
}

func (r usersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.scanOne(ctx, `
		SELECT user_id, username, available, frozen, created_at
		FROM users WHERE username = $1
	`, username)
}

func (r usersRepo) scanOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := r.s.db.QueryRow(ctx, query, arg).Scan(
		&u.UserID, &u.Username, &u.Available, &u.Frozen, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: user: %w", apierrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return &u, nil
}

// GetOrCreate returns the existing user for username, or inserts one with
// zero balances if none exists. The insert races safely under
// ON CONFLICT DO NOTHING; on conflict it re-reads the row that won.
func (r usersRepo) GetOrCreate(ctx context.Context, userID, username string) (*models.User, bool, error) {
	var u models.User
	err := r.s.db.QueryRow(ctx, `
		INSERT INTO users (user_id, username, available, frozen)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (username) DO NOTHING
		RETURNING user_id, username, available, frozen, created_at
	`, userID, username).Scan(&u.UserID, &u.Username, &u.Available, &u.Frozen, &u.CreatedAt)
	if err == nil {
		return &u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("postgres: create user: %w", err)
	}

	existing, getErr := r.GetByUsername(ctx, username)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

// UpdateBalances is called exclusively by the wallet ledger, inside a
// WithTx, so the row update and the ledger append it accompanies commit
// together.
func (r usersRepo) UpdateBalances(ctx context.Context, userID string, available, frozen int64) error {
	tag, err := r.s.db.Exec(ctx, `
		UPDATE users SET available = $2, frozen = $3 WHERE user_id = $1
	`, userID, available, frozen)
	if err != nil {
		return fmt.Errorf("postgres: update balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update balances: %w", apierrors.ErrNotFound)
	}
	return nil
}
