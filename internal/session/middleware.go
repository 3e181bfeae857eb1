package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/pkg/response"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	userIDKey    contextKey = "user_id"
)

// Extract resolves the session token from the request, if one is present,
// and stores the session id and bound user in the request context. Requests
// without a token pass through untouched; a token that is present but
// malformed or unknown is rejected.
func Extract(store Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := tokenFromRequest(r, cookieName)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			id, err := uuid.Parse(token)
			if err != nil {
				response.Error(w, errors.NewMalformedSessionError(err.Error()))
				return
			}

			userID, found, err := store.Resolve(r.Context(), id)
			if err != nil {
				response.Error(w, err)
				return
			}
			if !found {
				response.Error(w, errors.ErrInvalidSession)
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			if userID != nil {
				ctx = context.WithValue(ctx, userIDKey, *userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that did not present a valid session token.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IDFromContext(r.Context()); !ok {
			response.Error(w, errors.ErrNotLoggedIn)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests whose session is not bound to a user.
// Anonymous ceremony sessions do not pass.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			response.Error(w, errors.ErrNotLoggedIn)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IDFromContext returns the session id stored by Extract.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(sessionIDKey).(uuid.UUID)
	return id, ok
}

// UserFromContext returns the user id bound to the session, if any.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// tokenFromRequest reads the session token from the Authorization header or,
// failing that, the session cookie.
func tokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		return strings.TrimSpace(token), true
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}
