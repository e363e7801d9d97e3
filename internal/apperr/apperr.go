// Package apperr defines the closed set of error kinds the API reports.
// Every failure a handler can surface maps to exactly one kind, each
// carrying an HTTP status and a stable reason code so callers can
// distinguish outcomes without parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a categorized application error.
type Error struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches two errors by reason code, so wrapped instances still
// compare equal to the predefined kinds.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Predefined kinds. Handlers respond with HTTPStatus and the JSON body
// {code, message}.
var (
	ErrValidation    = &Error{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Invalid input"}
	ErrStateConflict = &Error{HTTPStatus: http.StatusConflict, Code: "STATE_CONFLICT", Message: "Operation not valid for current status"}
	ErrNotFound      = &Error{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrQuotaExceeded = &Error{HTTPStatus: http.StatusBadRequest, Code: "QUOTA_EXCEEDED", Message: "Submission quota exceeded"}
	ErrWindowClosed  = &Error{HTTPStatus: http.StatusBadRequest, Code: "WINDOW_CLOSED", Message: "Submission outside the allowed window"}
	ErrUpstream      = &Error{HTTPStatus: http.StatusBadGateway, Code: "UPSTREAM_UNAVAILABLE", Message: "Upstream service failed"}
	ErrUnauthorized  = &Error{HTTPStatus: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Authentication required"}
	ErrInternal      = &Error{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL", Message: "Server error"}
)

// New derives an error of the given kind with a specific message.
func New(kind *Error, message string) *Error {
	return &Error{HTTPStatus: kind.HTTPStatus, Code: kind.Code, Message: message}
}

// Newf derives an error of the given kind with a formatted message.
func Newf(kind *Error, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap derives an error of the given kind keeping the cause attached.
func Wrap(kind *Error, message string, cause error) *Error {
	return &Error{HTTPStatus: kind.HTTPStatus, Code: kind.Code, Message: message, cause: cause}
}

// From coerces any error into an *Error, mapping unknown errors to
// ErrInternal so no raw error text leaks to clients.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(ErrInternal, ErrInternal.Message, err)
}
