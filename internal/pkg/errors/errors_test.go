package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAPIError(t *testing.T) {
	assert.Equal(t, ErrUserNotFound, AsAPIError(ErrUserNotFound))

	// Wrapped API errors unwrap.
	wrapped := fmt.Errorf("login: %w", ErrInvalidCredentials)
	assert.Equal(t, ErrInvalidCredentials, AsAPIError(wrapped))

	// Arbitrary errors become internal.
	assert.Equal(t, ErrInternal, AsAPIError(fmt.Errorf("pool exhausted")))
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	detailed := ErrBadRequest.WithDetails(map[string]string{"field": "email"})
	assert.NotNil(t, detailed.Details)
	assert.Nil(t, ErrBadRequest.Details)
	assert.Equal(t, ErrBadRequest.Code, detailed.Code)
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrUserNotFound.StatusCode)
	assert.Equal(t, http.StatusNotFound, ErrTokenNotFound.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidCredentials.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidSession.StatusCode)
	assert.Equal(t, http.StatusForbidden, ErrNotLoggedIn.StatusCode)
	assert.Equal(t, http.StatusBadRequest, NewMalformedSessionError("x").StatusCode)
	assert.Equal(t, http.StatusBadRequest, ErrWebauthnProtocol.StatusCode)
}
