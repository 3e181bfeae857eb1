package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/service"
)

// MockWebAuthnService is a mock implementation of WebAuthnService for testing.
type MockWebAuthnService struct {
	mock.Mock
}

var _ service.WebAuthnService = (*MockWebAuthnService)(nil)

func (m *MockWebAuthnService) StartRegistration(ctx context.Context, sessionID uuid.UUID) (*protocol.CredentialCreation, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.CredentialCreation), args.Error(1)
}

func (m *MockWebAuthnService) FinishRegistration(ctx context.Context, sessionID uuid.UUID, body io.Reader) error {
	args := m.Called(ctx, sessionID, body)
	return args.Error(0)
}

func (m *MockWebAuthnService) StartAuthentication(ctx context.Context, email string) (uuid.UUID, *protocol.CredentialAssertion, error) {
	args := m.Called(ctx, email)
	if args.Get(1) == nil {
		return args.Get(0).(uuid.UUID), nil, args.Error(2)
	}
	return args.Get(0).(uuid.UUID), args.Get(1).(*protocol.CredentialAssertion), args.Error(2)
}

func (m *MockWebAuthnService) FinishAuthentication(ctx context.Context, sessionID uuid.UUID, body io.Reader) (service.UserSummary, error) {
	args := m.Called(ctx, sessionID, body)
	return args.Get(0).(service.UserSummary), args.Error(1)
}

func TestWebauthnEndpointsRequireSession(t *testing.T) {
	h := NewWebAuthnHandler(new(MockWebAuthnService), testCookieCfg).Routes()

	for _, path := range []string{"/register/begin", "/register/finish", "/login/finish"} {
		rec := postJSON(t, h, path, "{}")
		assert.Equal(t, http.StatusForbidden, rec.Code, "path %s", path)
	}
}

func TestWebauthnBeginLogin(t *testing.T) {
	t.Run("sets ceremony session cookie", func(t *testing.T) {
		sessionID := uuid.New()
		svc := new(MockWebAuthnService)
		svc.On("StartAuthentication", mock.Anything, "alice@example.com").
			Return(sessionID, &protocol.CredentialAssertion{}, nil)
		h := NewWebAuthnHandler(svc, testCookieCfg).Routes()

		rec := postJSON(t, h, "/login/begin", `{"email":"alice@example.com"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		cookies := rec.Result().Cookies()
		if assert.Len(t, cookies, 1) {
			assert.Equal(t, sessionID.String(), cookies[0].Value)
		}
	})

	t.Run("no passkeys maps to 404", func(t *testing.T) {
		svc := new(MockWebAuthnService)
		svc.On("StartAuthentication", mock.Anything, "alice@example.com").
			Return(uuid.Nil, nil, errors.ErrNoPasskeysRegistered)
		h := NewWebAuthnHandler(svc, testCookieCfg).Routes()

		rec := postJSON(t, h, "/login/begin", `{"email":"alice@example.com"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		h := NewWebAuthnHandler(new(MockWebAuthnService), testCookieCfg).Routes()

		req := httptest.NewRequest("POST", "/login/begin", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
