package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "session_id"

func newTestStore(t *testing.T) (Store, uuid.UUID, uuid.UUID) {
	t.Helper()
	store := NewStore(newFakeSessionRepo(), newFakeCache())
	userID := uuid.New()
	id, err := store.Create(context.Background(), userID)
	require.NoError(t, err)
	return store, id, userID
}

func extractTo(store Store, capture *http.Request) http.Handler {
	return Extract(store, testCookie)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*capture = *r
		w.WriteHeader(http.StatusOK)
	}))
}

func TestExtractBearerToken(t *testing.T) {
	store, id, userID := newTestStore(t)

	var seen http.Request
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+id.String())
	rec := httptest.NewRecorder()
	extractTo(store, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	gotID, ok := IDFromContext(seen.Context())
	assert.True(t, ok)
	assert.Equal(t, id, gotID)
	gotUser, ok := UserFromContext(seen.Context())
	assert.True(t, ok)
	assert.Equal(t, userID, gotUser)
}

func TestExtractCookie(t *testing.T) {
	store, id, _ := newTestStore(t)

	var seen http.Request
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: id.String()})
	rec := httptest.NewRecorder()
	extractTo(store, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := IDFromContext(seen.Context())
	assert.True(t, ok)
}

func TestExtractNoToken(t *testing.T) {
	store, _, _ := newTestStore(t)

	var seen http.Request
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	extractTo(store, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := IDFromContext(seen.Context())
	assert.False(t, ok)
}

func TestExtractMalformedToken(t *testing.T) {
	store, _, _ := newTestStore(t)

	var seen http.Request
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-uuid")
	rec := httptest.NewRecorder()
	extractTo(store, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractUnknownSession(t *testing.T) {
	store, _, _ := newTestStore(t)

	var seen http.Request
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+uuid.NewString())
	rec := httptest.NewRecorder()
	extractTo(store, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	store := NewStore(newFakeSessionRepo(), newFakeCache())
	id, err := store.CreateAnonymous(context.Background())
	require.NoError(t, err)

	handler := Extract(store, testCookie)(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+id.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSessionRejectsMissing(t *testing.T) {
	handler := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
