// Package service implements the business logic of the auth backend.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/models"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/pkg/password"
	"github.com/hausmeister-app/hausmeister/internal/pkg/ulid"
	"github.com/hausmeister-app/hausmeister/internal/pkg/validate"
	"github.com/hausmeister-app/hausmeister/internal/repository"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

// UserSummary is the user projection stored in the session and returned to
// clients.
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Summarize builds the session projection of a user.
func Summarize(u *models.User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// AuthService handles registration, login and password reset.
type AuthService interface {
	Register(ctx context.Context, reg models.Registration) (*models.User, error)
	// Login verifies credentials and starts a session. An unknown email is
	// reported distinctly from a wrong password.
	Login(ctx context.Context, creds models.Credentials) (uuid.UUID, UserSummary, error)
	Logout(ctx context.Context, sessionID uuid.UUID) error
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SessionUser(ctx context.Context, sessionID uuid.UUID) (*UserSummary, error)

	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ValidateResetToken(ctx context.Context, token string) error
	PerformPasswordReset(ctx context.Context, token, newPassword string) error

	// BootstrapAdmin creates the configured admin account when the user
	// table is empty. It reports whether an account was created.
	BootstrapAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error)
}

type authService struct {
	users    repository.UserRepository
	resets   repository.ResetRepository
	sessions session.Store
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	resets repository.ResetRepository,
	sessions session.Store,
	logger *slog.Logger,
) AuthService {
	return &authService{
		users:    users,
		resets:   resets,
		sessions: sessions,
		logger:   logger,
	}
}

var _ AuthService = (*authService)(nil)

func (s *authService) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	if errs := validate.Struct(reg); errs != nil {
		return nil, errors.NewValidationErrors(errs)
	}

	trimmed, err := password.Validate(reg.Password)
	if err != nil {
		return nil, errors.NewValidationError("password", err.Error())
	}

	hash, err := password.Hash(trimmed)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: &hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrDuplicateEmail) {
			return nil, errors.NewConflictError("An account with this email already exists")
		}
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *authService) Login(ctx context.Context, creds models.Credentials) (uuid.UUID, UserSummary, error) {
	if errs := validate.Struct(creds); errs != nil {
		return uuid.Nil, UserSummary{}, errors.NewValidationErrors(errs)
	}

	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		return uuid.Nil, UserSummary{}, err
	}
	if user == nil {
		return uuid.Nil, UserSummary{}, errors.ErrUserNotFound
	}
	if user.PasswordHash == nil {
		// Passkey-only account.
		return uuid.Nil, UserSummary{}, errors.ErrInvalidCredentials
	}

	ok, err := password.Verify(creds.Password, *user.PasswordHash)
	if err != nil {
		return uuid.Nil, UserSummary{}, fmt.Errorf("verifying password for user %s: %w", user.ID, err)
	}
	if !ok {
		return uuid.Nil, UserSummary{}, errors.ErrInvalidCredentials
	}

	summary := Summarize(user)
	sessionID, err := s.createSession(ctx, summary)
	if err != nil {
		return uuid.Nil, UserSummary{}, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sessionID)
	return sessionID, summary, nil
}

func (s *authService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Invalidate(ctx, sessionID)
}

func (s *authService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.ErrUserNotFound
	}
	return user, nil
}

// SessionUser returns the user summary stored in the session, or nil for an
// anonymous session.
func (s *authService) SessionUser(ctx context.Context, sessionID uuid.UUID) (*UserSummary, error) {
	summary, ok, err := session.GetTyped[UserSummary](ctx, s.sessions, sessionID, session.SlotUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if !validate.Email(email) {
		return "", errors.NewValidationError("email", "must be a valid email address")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.ErrUserNotFound
	}

	token := ulid.New()
	if err := s.resets.Upsert(ctx, token, user.ID); err != nil {
		return "", err
	}

	s.logger.Info("password reset requested", "user_id", user.ID)
	return token, nil
}

func (s *authService) ValidateResetToken(ctx context.Context, token string) error {
	if !ulid.IsValid(token) {
		return errors.ErrTokenNotFound
	}
	exists, err := s.resets.Exists(ctx, token)
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrTokenNotFound
	}
	return nil
}

func (s *authService) PerformPasswordReset(ctx context.Context, token, newPassword string) error {
	trimmed, err := password.Validate(newPassword)
	if err != nil {
		return errors.NewValidationError("password", err.Error())
	}
	hash, err := password.Hash(trimmed)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	found, err := s.resets.Consume(ctx, token, hash)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrTokenNotFound
	}

	s.logger.Info("password reset performed")
	return nil
}

func (s *authService) BootstrapAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	if !cfg.Enabled() {
		return false, nil
	}

	trimmed, err := password.Validate(cfg.Password)
	if err != nil {
		return false, fmt.Errorf("admin password: %w", err)
	}
	hash, err := password.Hash(trimmed)
	if err != nil {
		return false, fmt.Errorf("hashing admin password: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "Admin"
	}
	admin := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        cfg.Email,
		PasswordHash: &hash,
	}

	created, err := s.users.CreateAdminIfNoneExist(ctx, admin)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("bootstrap admin created", "email", cfg.Email)
	}
	return created, nil
}

// createSession starts a session for the user and stores the summary under
// the user slot.
func (s *authService) createSession(ctx context.Context, summary UserSummary) (uuid.UUID, error) {
	sessionID, err := s.sessions.Create(ctx, summary.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := session.SetTyped(ctx, s.sessions, sessionID, session.SlotUser, summary); err != nil {
		return uuid.Nil, err
	}
	return sessionID, nil
}
