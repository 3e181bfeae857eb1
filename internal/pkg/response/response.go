// Package response provides standardized JSON response envelopes.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
)

// Response is the standard envelope for all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *ErrorObj `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// ErrorObj is the error payload inside an envelope.
type ErrorObj struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta carries pagination and other metadata.
type Meta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// JSON writes a success response with the given status code and data.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{Data: data})
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response. Non-API errors are logged and mapped to a
// generic 500 so internal details never reach the client.
func Error(w http.ResponseWriter, err error) {
	apiErr := errors.AsAPIError(err)
	if apiErr == errors.ErrInternal && err != errors.ErrInternal {
		slog.Error("unhandled error", "error", err)
	}
	write(w, apiErr.StatusCode, Response{
		Error: &ErrorObj{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

func write(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
