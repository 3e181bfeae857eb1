package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PasskeyRepository stores WebAuthn credentials as serialized JSON documents.
type PasskeyRepository interface {
	Add(ctx context.Context, userID uuid.UUID, credential json.RawMessage) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]json.RawMessage, error)
	// UpdateCredential replaces the stored document whose credential id
	// matches, persisting updated authenticator state such as the sign counter.
	UpdateCredential(ctx context.Context, userID uuid.UUID, credentialID string, credential json.RawMessage) error
}

type passkeyRepository struct {
	pool *pgxpool.Pool
}

// NewPasskeyRepository creates a new passkey repository.
func NewPasskeyRepository(pool *pgxpool.Pool) PasskeyRepository {
	return &passkeyRepository{pool: pool}
}

var _ PasskeyRepository = (*passkeyRepository)(nil)

func (r *passkeyRepository) Add(ctx context.Context, userID uuid.UUID, credential json.RawMessage) error {
	query := `
		INSERT INTO webauthn_passkeys (id, user_id, credential)
		VALUES ($1, $2, $3)`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), userID, credential); err != nil {
		return fmt.Errorf("failed to add passkey: %w", err)
	}
	return nil
}

func (r *passkeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]json.RawMessage, error) {
	query := `
		SELECT credential
		FROM webauthn_passkeys
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passkeys: %w", err)
	}
	defer rows.Close()

	var credentials []json.RawMessage
	for rows.Next() {
		var cred json.RawMessage
		if err := rows.Scan(&cred); err != nil {
			return nil, fmt.Errorf("failed to scan passkey: %w", err)
		}
		credentials = append(credentials, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passkeys: %w", err)
	}
	return credentials, nil
}

func (r *passkeyRepository) UpdateCredential(ctx context.Context, userID uuid.UUID, credentialID string, credential json.RawMessage) error {
	// The credential id lives inside the JSON document under the "id" key,
	// in padded standard base64 as encoding/json marshals []byte.
	query := `
		UPDATE webauthn_passkeys
		SET credential = $3
		WHERE user_id = $1 AND credential ->> 'id' = $2`

	if _, err := r.pool.Exec(ctx, query, userID, credentialID, credential); err != nil {
		return fmt.Errorf("failed to update passkey: %w", err)
	}
	return nil
}
