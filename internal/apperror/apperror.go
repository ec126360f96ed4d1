// Package apperror defines the error kinds services return and handlers
// translate into HTTP responses.
//
// Services build errors with the constructors below; callers match them with
// errors.Is against the sentinels, through any amount of %w wrapping.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// codes are the machine-readable names clients switch on.
var codes = []struct {
	kind error
	code string
}{
	{ErrValidation, "validation_error"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
}

// AppError is a user-facing error: Message is safe to show, Field names the
// offending input for validation failures.
type AppError struct {
	Err     error // one of the sentinels above
	Message string
	Field   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(kind error, message string) *AppError {
	return &AppError{Err: kind, Message: message}
}

func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s %s does not exist", resource, id))
}

// NotFoundByName is NotFound for lookups keyed by a display name instead of an id.
func NotFoundByName(resource, name string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("no %s named %q", resource, name))
}

func ValidationFailed(field, message string) *AppError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

// Conflict reports a request that clashes with existing state, e.g. an
// ambiguous display name or a habit already completed this period.
func Conflict(message string) *AppError {
	return newError(ErrConflict, message)
}

func Forbidden(message string) *AppError {
	return newError(ErrForbidden, message)
}

// Unauthorized is returned for bad credentials or a missing session.
func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, message)
}

// Code returns the machine-readable code for err's kind, or "internal_error"
// when err is not an AppError kind.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "internal_error"
}
