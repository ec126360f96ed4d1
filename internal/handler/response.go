package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// response shape. Errors always look like:
//
//	{"error": "not_found", "message": "no user named \"bob\""}
//	{"error": "validation_error", "message": "habit name is required", "field": "name"}
//
// Clients switch on "error" and show "message"; "field" is only present for
// validation failures.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/auth"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, validation errors only
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written BEFORE the body: once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusByCode maps apperror codes to HTTP statuses. The service layer never
// knows about HTTP; the mapping lives here.
var statusByCode = map[string]int{
	"validation_error": http.StatusBadRequest,
	"unauthorized":     http.StatusUnauthorized,
	"forbidden":        http.StatusForbidden,
	"not_found":        http.StatusNotFound,
	"conflict":         http.StatusConflict,
}

// writeError sends err in the standard error shape. errors.As walks the whole
// wrap chain, so "service/habit: ...: %w" around an AppError still matches.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code := apperror.Code(appErr)
		status, ok := statusByCode[code]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, ErrorResponse{
			Error:   code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Raw messages can carry SQL or file paths, so they go to the log, never
	// to the client.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields, trailing data and oversized bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is empty")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be %d bytes or fewer", maxErr.Limit))
		default:
			return apperror.ValidationFailed("body", "invalid JSON: "+err.Error())
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// currentUser returns the authenticated user id. Routes behind
// auth.RequireAuth always have one; the error covers misrouted handlers.
func currentUser(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok || id == "" {
		return "", apperror.Unauthorized("authentication required")
	}
	return id, nil
}
