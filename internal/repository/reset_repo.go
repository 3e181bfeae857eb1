package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResetRepository handles password reset tokens. A user has at most one
// pending token; requesting a new one supersedes the old.
type ResetRepository interface {
	Upsert(ctx context.Context, token string, userID uuid.UUID) error
	Exists(ctx context.Context, token string) (bool, error)
	// Consume deletes the token and sets the user's password hash in one
	// transaction. It returns false when the token does not exist.
	Consume(ctx context.Context, token string, passwordHash string) (bool, error)
}

type resetRepository struct {
	pool *pgxpool.Pool
}

// NewResetRepository creates a new password reset repository.
func NewResetRepository(pool *pgxpool.Pool) ResetRepository {
	return &resetRepository{pool: pool}
}

var _ ResetRepository = (*resetRepository)(nil)

func (r *resetRepository) Upsert(ctx context.Context, token string, userID uuid.UUID) error {
	query := `
		INSERT INTO password_reset_requests (token, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
			SET token = EXCLUDED.token, created_at = now()`

	if _, err := r.pool.Exec(ctx, query, token, userID); err != nil {
		return fmt.Errorf("failed to upsert reset token: %w", err)
	}
	return nil
}

func (r *resetRepository) Exists(ctx context.Context, token string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM password_reset_requests WHERE token = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reset token: %w", err)
	}
	return exists, nil
}

func (r *resetRepository) Consume(ctx context.Context, token string, passwordHash string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM password_reset_requests WHERE token = $1 RETURNING user_id`,
		token,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume reset token: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update password: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}
