// Package handler provides HTTP handlers for the auth API.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/models"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/pkg/response"
	"github.com/hausmeister-app/hausmeister/internal/service"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

// AuthHandler handles registration, login and password reset endpoints.
type AuthHandler struct {
	auth   service.AuthService
	cookie config.SessionConfig
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth service.AuthService, cookie config.SessionConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

// Routes returns the router for auth endpoints.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.With(session.RequireSession).Post("/logout", h.Logout)
	r.With(session.RequireSession).Get("/session", h.Session)
	r.With(session.RequireUser).Get("/user", h.User)

	r.Post("/request-reset", h.RequestReset)
	r.Post("/reset/validate", h.ValidateReset)
	r.Post("/reset", h.PerformReset)

	return r
}

type loginResponse struct {
	SessionID uuid.UUID           `json:"session_id"`
	User      service.UserSummary `json:"user"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, service.Summarize(user))
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	sessionID, user, err := h.auth.Login(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}

	h.setSessionCookie(w, sessionID)
	response.OK(w, loginResponse{SessionID: sessionID, User: user})
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		response.Error(w, err)
		return
	}
	h.clearSessionCookie(w)
	response.NoContent(w)
}

// Session handles GET /session. It reports the user bound to the current
// session; anonymous sessions report a null user.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	user, err := h.auth.SessionUser(r.Context(), sessionID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"user": user})
}

// User handles GET /user.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserFromContext(r.Context())

	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, user)
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type resetTokenRequest struct {
	Token string `json:"token"`
}

type performResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// RequestReset handles POST /request-reset.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	token, err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"token": token})
}

// ValidateReset handles POST /reset/validate.
func (h *AuthHandler) ValidateReset(w http.ResponseWriter, r *http.Request) {
	var req resetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	if err := h.auth.ValidateResetToken(r.Context(), req.Token); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// PerformReset handles POST /reset.
func (h *AuthHandler) PerformReset(w http.ResponseWriter, r *http.Request) {
	var req performResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, errors.ErrBadRequest.WithMessage("Invalid JSON body"))
		return
	}

	if err := h.auth.PerformPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    sessionID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
