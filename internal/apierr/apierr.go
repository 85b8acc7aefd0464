// Package apierr is the error taxonomy every handler returns instead of a
// bare error: a Kind that maps deterministically to an HTTP status and a
// stable code string, mirroring the teacher's handler.ErrorResponse shape
// but attached to the error value itself instead of constructed ad hoc at
// each call site.
package apierr

import (
	"errors"
	"net/http"
)

// Kind is the closed set of API error categories.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindUnavailable      Kind = "UNAVAILABLE"
	KindInternal         Kind = "INTERNAL"
)

// Error is a Kind-tagged API error. Handlers type-assert *Error via As to
// recover the status and code; anything that isn't an *Error is treated as
// KindInternal so an unexpected error never leaks its message verbatim.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Wrap attaches kind and message to cause, preserving it for logging via
// Unwrap while keeping the client-facing message separate.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Unauthenticated(message string) *Error  { return &Error{Kind: KindUnauthenticated, Message: message} }
func PermissionDenied(message string) *Error { return &Error{Kind: KindPermissionDenied, Message: message} }
func NotFound(message string) *Error         { return &Error{Kind: KindNotFound, Message: message} }
func InvalidArgument(message string) *Error  { return &Error{Kind: KindInvalidArgument, Message: message} }
func Unavailable(message string) *Error      { return &Error{Kind: KindUnavailable, Message: message} }
func Internal(message string) *Error         { return &Error{Kind: KindInternal, Message: message} }

// HTTPStatus returns the status code Kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As extracts status, code, and message for a handler to write out,
// defaulting to KindInternal for any error that isn't an *Error so internal
// details never reach the client unintentionally.
func As(err error) (status int, code string, message string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind.HTTPStatus(), string(apiErr.Kind), apiErr.Message
	}
	return http.StatusInternalServerError, string(KindInternal), "internal error"
}
