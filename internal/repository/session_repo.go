package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hausmeister-app/hausmeister/internal/models"
)

// ErrSessionNotFound is returned by BindUser when the session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles the durable tier of the session store. Session
// data is a JSONB document addressed by named slots.
type SessionRepository interface {
	// Upsert creates a session for the user, replacing any existing session
	// for the same user. It returns the id of the replaced session, if any.
	Upsert(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*uuid.UUID, error)
	// CreateAnonymous creates a session not bound to any user.
	CreateAnonymous(ctx context.Context, id uuid.UUID) error
	// Get returns the session or (nil, nil) when it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// BindUser attaches a user to an existing session, displacing any other
	// session bound to that user. It returns the displaced session id, or
	// ErrSessionNotFound when the session does not exist.
	BindUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*uuid.UUID, error)
	// GetData returns the raw value under a slot. found reports whether the
	// session itself exists; a nil value with found=true means the slot is empty.
	GetData(ctx context.Context, id uuid.UUID, slot string) (value json.RawMessage, found bool, err error)
	// SetData stores a value under a slot and returns the previous value.
	SetData(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) (prev json.RawMessage, found bool, err error)
	// DeleteData removes a slot. Deleting an absent slot is not an error.
	DeleteData(ctx context.Context, id uuid.UUID, slot string) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

var _ SessionRepository = (*sessionRepository)(nil)

func (r *sessionRepository) Upsert(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*uuid.UUID, error) {
	// The CTE captures the id of the session this upsert displaces, so the
	// caller can evict it from the cache tier.
	query := `
		WITH old AS (
			SELECT id FROM sessions WHERE user_id = $2
		)
		INSERT INTO sessions (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
			SET id = EXCLUDED.id, data = '{}'::jsonb, created_at = now()
		RETURNING (SELECT id FROM old)`

	var prev *uuid.UUID
	if err := r.pool.QueryRow(ctx, query, id, userID).Scan(&prev); err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return prev, nil
}

func (r *sessionRepository) CreateAnonymous(ctx context.Context, id uuid.UUID) error {
	query := `INSERT INTO sessions (id) VALUES ($1)`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to create anonymous session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, user_id, data, created_at
		FROM sessions
		WHERE id = $1`

	session := &models.Session{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.Data, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) BindUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*uuid.UUID, error) {
	// Any other session already bound to this user is removed first, keeping
	// the one-session-per-user invariant. Its id is surfaced for cache eviction.
	query := `
		WITH old AS (
			DELETE FROM sessions
			WHERE user_id = $2 AND id <> $1
			RETURNING id
		)
		UPDATE sessions
		SET user_id = $2
		WHERE id = $1
		RETURNING (SELECT id FROM old)`

	var prev *uuid.UUID
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to bind session user: %w", err)
	}
	return prev, nil
}

func (r *sessionRepository) GetData(ctx context.Context, id uuid.UUID, slot string) (json.RawMessage, bool, error) {
	query := `SELECT data -> $2 FROM sessions WHERE id = $1`

	var value json.RawMessage
	err := r.pool.QueryRow(ctx, query, id, slot).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get session data: %w", err)
	}
	return value, true, nil
}

func (r *sessionRepository) SetData(ctx context.Context, id uuid.UUID, slot string, value json.RawMessage) (json.RawMessage, bool, error) {
	query := `
		UPDATE sessions s
		SET data = jsonb_set(s.data, ARRAY[$2], $3::jsonb, true)
		FROM (SELECT id, data -> $2 AS prev FROM sessions WHERE id = $1) old
		WHERE s.id = old.id
		RETURNING old.prev`

	var prev json.RawMessage
	err := r.pool.QueryRow(ctx, query, id, slot, value).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to set session data: %w", err)
	}
	return prev, true, nil
}

func (r *sessionRepository) DeleteData(ctx context.Context, id uuid.UUID, slot string) error {
	query := `UPDATE sessions SET data = data - $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, slot); err != nil {
		return fmt.Errorf("failed to delete session data: %w", err)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sessions WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
