package domain

import (
	"errors"
	"fmt"
)

// Kind is the small, closed set of error categories a caller can observe.
// The transport layer maps each kind to a status code.
type Kind string

const (
	KindBadRequest             Kind = "BAD_REQUEST"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindTooManyRequests        Kind = "TOO_MANY_REQUESTS"
	KindOutputValidationFailed Kind = "OUTPUT_VALIDATION_FAILED"
	KindInternal               Kind = "INTERNAL_SERVER_ERROR"
)

// Error is a structured error that is safe to show to callers.
// Message and Meta are client-facing; Cause is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf reports the kind of err, or KindInternal if err carries no domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func ErrUnauthorized() *Error {
	return New(KindUnauthorized, "authentication required")
}

// ErrInvalidCredentials is used for every sign-in failure so that
// unknown emails and wrong passwords look the same.
func ErrInvalidCredentials() *Error {
	return New(KindUnauthorized, "invalid email or password")
}

// ErrTodoNotFound covers both a missing todo and one owned by someone else.
func ErrTodoNotFound() *Error {
	return New(KindNotFound, "todo not found")
}

func ErrProcedureNotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Message: "procedure not found", Meta: map[string]string{"procedure": name}}
}

func ErrVerificationNotFound() *Error {
	return New(KindBadRequest, "invalid or expired verification token")
}

func ErrEmailAlreadyVerified() *Error {
	return New(KindBadRequest, "email already verified")
}

func ErrEmailExists() *Error {
	return New(KindConflict, "email already registered")
}

func ErrInvalidInput(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Meta: fields}
}

func ErrInvalidField(field, reason string) *Error {
	return ErrInvalidInput("input validation failed", map[string]string{field: reason})
}

func ErrRateLimited(scope string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: "too many requests", Meta: map[string]string{"scope": scope}}
}

func ErrOutputValidation(cause error) *Error {
	return Wrap(KindOutputValidationFailed, "output validation failed", cause)
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, "internal server error", cause)
}
