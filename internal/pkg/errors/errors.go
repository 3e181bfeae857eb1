// Package errors provides standardized API error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions
var (
	// ErrUserNotFound is returned when an email or user id maps to no user.
	ErrUserNotFound = &APIError{
		Code:       "user_not_found",
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrInvalidCredentials is returned when the submitted password is wrong.
	ErrInvalidCredentials = &APIError{
		Code:       "invalid_credentials",
		Message:    "Wrong credentials",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidSession is returned when a session token maps to no session.
	ErrInvalidSession = &APIError{
		Code:       "invalid_session",
		Message:    "Invalid or expired session",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrNotLoggedIn is returned when a route requires authentication but the
	// request carried no session token.
	ErrNotLoggedIn = &APIError{
		Code:       "not_logged_in",
		Message:    "You have to be logged in to access this part of the API",
		StatusCode: http.StatusForbidden,
	}

	// ErrTokenNotFound is returned when a password reset token does not exist
	// or has already been consumed.
	ErrTokenNotFound = &APIError{
		Code:       "token_not_found",
		Message:    "Token not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrNoPasskeysRegistered is returned when passkey authentication is
	// requested for a user without any registered passkeys.
	ErrNoPasskeysRegistered = &APIError{
		Code:       "no_passkeys_registered",
		Message:    "No passkeys registered for this user",
		StatusCode: http.StatusNotFound,
	}

	// ErrWebauthnProtocol is returned when a WebAuthn ceremony response fails
	// verification against the stored ceremony state.
	ErrWebauthnProtocol = &APIError{
		Code:       "webauthn_protocol_error",
		Message:    "WebAuthn ceremony failed",
		StatusCode: http.StatusBadRequest,
	}

	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrConflict is returned when a resource already exists.
	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewMalformedSessionError creates an error for a session token that is not
// syntactically valid (e.g. not a UUID).
func NewMalformedSessionError(detail string) *APIError {
	return &APIError{
		Code:       "malformed_session",
		Message:    fmt.Sprintf("Session token is not valid: %s", detail),
		StatusCode: http.StatusBadRequest,
	}
}

// NewMissingDataError creates an error for a valid session that has no data
// stored under a required slot.
func NewMissingDataError(slot string) *APIError {
	return &APIError{
		Code:       "missing_session_data",
		Message:    fmt.Sprintf("Session has no data under %q", slot),
		StatusCode: http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewValidationErrors creates a validation error with multiple field errors.
func NewValidationErrors(errors map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
		Details:    errors,
	}
}

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal otherwise, so unexpected failures are surfaced as a
// generic internal error without leaking details to the caller.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
