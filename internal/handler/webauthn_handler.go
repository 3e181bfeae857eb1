package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/pkg/response"
	"github.com/hausmeister-app/hausmeister/internal/service"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

// WebAuthnHandler handles passkey ceremony endpoints.
type WebAuthnHandler struct {
	webauthn service.WebAuthnService
	cookie   config.SessionConfig
}

// NewWebAuthnHandler creates a new WebAuthn handler.
func NewWebAuthnHandler(webauthn service.WebAuthnService, cookie config.SessionConfig) *WebAuthnHandler {
	return &WebAuthnHandler{webauthn: webauthn, cookie: cookie}
}

// Routes returns the router for WebAuthn endpoints.
func (h *WebAuthnHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(session.RequireUser).Post("/register/begin", h.BeginRegistration)
	r.With(session.RequireUser).Post("/register/finish", h.FinishRegistration)
	r.Post("/login/begin", h.BeginLogin)
	r.With(session.RequireSession).Post("/login/finish", h.FinishLogin)

	return r
}

// BeginRegistration handles POST /webauthn/register/begin.
func (h *WebAuthnHandler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	creation, err := h.webauthn.StartRegistration(r.Context(), sessionID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, creation)
}

// FinishRegistration handles POST /webauthn/register/finish. The body is the
// authenticator's attestation response, passed through to verification.
func (h *WebAuthnHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	if err := h.webauthn.FinishRegistration(r.Context(), sessionID, r.Body); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

type beginLoginRequest struct {
	Email string `json:"email"`
}

type beginLoginResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Options   any       `json:"options"`
}

// BeginLogin handles POST /webauthn/login/begin. It creates an anonymous
// session to carry the ceremony; the client presents it when finishing.
func (h *WebAuthnHandler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	var req beginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	sessionID, assertion, err := h.webauthn.StartAuthentication(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    sessionID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	response.OK(w, beginLoginResponse{SessionID: sessionID, Options: assertion})
}

// FinishLogin handles POST /webauthn/login/finish. The session may be
// anonymous at this point; a successful assertion binds the user to it.
func (h *WebAuthnHandler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	user, err := h.webauthn.FinishAuthentication(r.Context(), sessionID, r.Body)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, loginResponse{SessionID: sessionID, User: user})
}
