// Package models defines the domain entities shared across layers.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash is nil for accounts that only
// authenticate with passkeys.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is the durable record of an authentication session. UserID is nil
// for anonymous sessions created to carry a WebAuthn ceremony.
type Session struct {
	ID        uuid.UUID       `json:"id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// PasswordReset is a pending password reset request. Token doubles as the
// primary key; at most one request exists per user.
type PasswordReset struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Passkey is a stored WebAuthn credential. Credential holds the serialized
// webauthn.Credential as produced by the library.
type Passkey struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Credential json.RawMessage `json:"credential"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Credentials is the login request payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the signup request payload.
type Registration struct {
	Name     string `json:"name" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
