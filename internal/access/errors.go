package access

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Error carries a message meant for the caller alongside its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) error { return newError(ErrBadRequest, format, args...) }
func Validation(format string, args ...any) error { return newError(ErrValidation, format, args...) }
func Conflict(format string, args ...any) error   { return newError(ErrConflict, format, args...) }
func NotFound(format string, args ...any) error   { return newError(ErrNotFound, format, args...) }

// Unauthorized and Forbidden carry fixed messages.
func Unauthorized() error { return &Error{Kind: ErrUnauthorized, Message: "Unauthorized"} }
func Forbidden() error    { return &Error{Kind: ErrForbidden, Message: "Forbidden"} }

// Message returns the caller-facing message of err, or fallback when err is
// not an *Error.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fallback
}
