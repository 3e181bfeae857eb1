package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/repository"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

// CeremonyKind distinguishes the two WebAuthn ceremonies. Finishing a
// ceremony of the wrong kind against stored state is a protocol error.
type CeremonyKind string

const (
	CeremonyRegistration   CeremonyKind = "registration"
	CeremonyAuthentication CeremonyKind = "authentication"
)

// CeremonyState is the in-flight ceremony stored in the session ceremony
// slot. UserID is held server-side so the finishing step never trusts a
// client-supplied identity.
type CeremonyState struct {
	Kind   CeremonyKind         `json:"kind"`
	UserID uuid.UUID            `json:"user_id"`
	Data   webauthn.SessionData `json:"data"`
}

// WebAuthnService drives passkey registration and authentication ceremonies.
type WebAuthnService interface {
	// StartRegistration begins a passkey registration ceremony for the
	// session's logged-in user.
	StartRegistration(ctx context.Context, sessionID uuid.UUID) (*protocol.CredentialCreation, error)
	// FinishRegistration verifies the authenticator response and stores the
	// new credential. The ceremony state is consumed regardless of outcome.
	FinishRegistration(ctx context.Context, sessionID uuid.UUID, body io.Reader) error

	// StartAuthentication begins a passkey login ceremony for the given
	// email and returns the anonymous session carrying the ceremony.
	StartAuthentication(ctx context.Context, email string) (uuid.UUID, *protocol.CredentialAssertion, error)
	// FinishAuthentication verifies the assertion, binds the user to the
	// session and returns the logged-in user.
	FinishAuthentication(ctx context.Context, sessionID uuid.UUID, body io.Reader) (UserSummary, error)
}

type webauthnService struct {
	web      *webauthn.WebAuthn
	users    repository.UserRepository
	passkeys repository.PasskeyRepository
	sessions session.Store
	logger   *slog.Logger
}

// NewWebAuthnService creates a new WebAuthn service.
func NewWebAuthnService(
	cfg config.WebAuthnConfig,
	users repository.UserRepository,
	passkeys repository.PasskeyRepository,
	sessions session.Store,
	logger *slog.Logger,
) (WebAuthnService, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}

	return &webauthnService{
		web:      web,
		users:    users,
		passkeys: passkeys,
		sessions: sessions,
		logger:   logger,
	}, nil
}

var _ WebAuthnService = (*webauthnService)(nil)

// webauthnUser adapts a user and their stored credentials to the webauthn
// library's User interface.
type webauthnUser struct {
	id          uuid.UUID
	email       string
	displayName string
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return u.id[:] }
func (u *webauthnUser) WebAuthnName() string                       { return u.email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (s *webauthnService) StartRegistration(ctx context.Context, sessionID uuid.UUID) (*protocol.CredentialCreation, error) {
	summary, ok, err := session.GetTyped[UserSummary](ctx, s.sessions, sessionID, session.SlotUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNotLoggedIn
	}

	wUser, err := s.loadWebauthnUser(ctx, summary.ID, summary.Email, summary.Name)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(wUser.credentials))
	for _, cred := range wUser.credentials {
		exclusions = append(exclusions, cred.Descriptor())
	}

	creation, data, err := s.web.BeginRegistration(wUser, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	// A ceremony already in flight is simply overwritten.
	state := CeremonyState{Kind: CeremonyRegistration, UserID: summary.ID, Data: *data}
	if _, err := session.SetTyped(ctx, s.sessions, sessionID, session.SlotCeremony, state); err != nil {
		return nil, err
	}
	return creation, nil
}

func (s *webauthnService) FinishRegistration(ctx context.Context, sessionID uuid.UUID, body io.Reader) error {
	state, err := s.takeCeremony(ctx, sessionID, CeremonyRegistration)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, state.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.ErrUserNotFound
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		s.logger.Warn("registration response rejected", "user_id", state.UserID, "error", err)
		return errors.ErrWebauthnProtocol
	}

	wUser, err := s.loadWebauthnUser(ctx, user.ID, user.Email, user.Name)
	if err != nil {
		return err
	}

	credential, err := s.web.CreateCredential(wUser, state.Data, parsed)
	if err != nil {
		s.logger.Warn("registration ceremony failed", "user_id", state.UserID, "error", err)
		return errors.ErrWebauthnProtocol
	}

	raw, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.passkeys.Add(ctx, user.ID, raw); err != nil {
		return err
	}

	s.logger.Info("passkey registered", "user_id", user.ID)
	return nil
}

func (s *webauthnService) StartAuthentication(ctx context.Context, email string) (uuid.UUID, *protocol.CredentialAssertion, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if user == nil {
		return uuid.Nil, nil, errors.ErrUserNotFound
	}

	wUser, err := s.loadWebauthnUser(ctx, user.ID, user.Email, user.Name)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if len(wUser.credentials) == 0 {
		return uuid.Nil, nil, errors.ErrNoPasskeysRegistered
	}

	assertion, data, err := s.web.BeginLogin(wUser)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to begin login: %w", err)
	}

	sessionID, err := s.sessions.CreateAnonymous(ctx)
	if err != nil {
		return uuid.Nil, nil, err
	}

	state := CeremonyState{Kind: CeremonyAuthentication, UserID: user.ID, Data: *data}
	if _, err := session.SetTyped(ctx, s.sessions, sessionID, session.SlotCeremony, state); err != nil {
		return uuid.Nil, nil, err
	}
	return sessionID, assertion, nil
}

func (s *webauthnService) FinishAuthentication(ctx context.Context, sessionID uuid.UUID, body io.Reader) (UserSummary, error) {
	state, err := s.takeCeremony(ctx, sessionID, CeremonyAuthentication)
	if err != nil {
		return UserSummary{}, err
	}

	// The user identity comes from the server-held ceremony state, never
	// from the client response.
	user, err := s.users.GetByID(ctx, state.UserID)
	if err != nil {
		return UserSummary{}, err
	}
	if user == nil {
		return UserSummary{}, errors.ErrUserNotFound
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		s.logger.Warn("authentication response rejected", "user_id", state.UserID, "error", err)
		return UserSummary{}, errors.ErrWebauthnProtocol
	}

	wUser, err := s.loadWebauthnUser(ctx, user.ID, user.Email, user.Name)
	if err != nil {
		return UserSummary{}, err
	}

	credential, err := s.web.ValidateLogin(wUser, state.Data, parsed)
	if err != nil {
		s.logger.Warn("authentication ceremony failed", "user_id", state.UserID, "error", err)
		return UserSummary{}, errors.ErrWebauthnProtocol
	}

	// Persist updated authenticator state, notably the sign counter.
	raw, err := json.Marshal(credential)
	if err != nil {
		return UserSummary{}, fmt.Errorf("failed to encode credential: %w", err)
	}
	credID := base64.StdEncoding.EncodeToString(credential.ID)
	if err := s.passkeys.UpdateCredential(ctx, user.ID, credID, raw); err != nil {
		return UserSummary{}, err
	}

	if err := s.sessions.BindUser(ctx, sessionID, user.ID); err != nil {
		return UserSummary{}, err
	}
	summary := Summarize(user)
	if _, err := session.SetTyped(ctx, s.sessions, sessionID, session.SlotUser, summary); err != nil {
		return UserSummary{}, err
	}

	s.logger.Info("passkey login", "user_id", user.ID, "session_id", sessionID)
	return summary, nil
}

// takeCeremony consumes the ceremony slot and returns its state if the kind
// matches. The slot is cleared even when the kind check fails, so stale
// ceremonies cannot be retried.
func (s *webauthnService) takeCeremony(ctx context.Context, sessionID uuid.UUID, kind CeremonyKind) (*CeremonyState, error) {
	state, ok, err := session.GetTyped[CeremonyState](ctx, s.sessions, sessionID, session.SlotCeremony)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewMissingDataError(session.SlotCeremony)
	}

	if err := s.sessions.DeleteData(ctx, sessionID, session.SlotCeremony); err != nil {
		return nil, err
	}
	if state.Kind != kind {
		return nil, errors.ErrWebauthnProtocol
	}
	return &state, nil
}

// loadWebauthnUser assembles the webauthn.User view of an account from the
// stored credential documents.
func (s *webauthnService) loadWebauthnUser(ctx context.Context, id uuid.UUID, email, name string) (*webauthnUser, error) {
	docs, err := s.passkeys.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}

	credentials := make([]webauthn.Credential, 0, len(docs))
	for _, doc := range docs {
		var cred webauthn.Credential
		if err := json.Unmarshal(doc, &cred); err != nil {
			return nil, fmt.Errorf("failed to decode stored credential: %w", err)
		}
		credentials = append(credentials, cred)
	}

	return &webauthnUser{
		id:          id,
		email:       email,
		displayName: name,
		credentials: credentials,
	}, nil
}
