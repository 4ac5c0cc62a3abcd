// Package apperr defines the error kinds every postboard operation reports.
//
// Operations return (value, error). When the error is one of the kinds below it
// is an *Error; anything else is an unexpected failure and is reported as
// KindInternal by KindOf.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindPermission      Kind = "PERMISSION_DENIED"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindAccountLimit    Kind = "ACCOUNT_LIMIT"
	KindDuplicate       Kind = "DUPLICATE_ENTITY"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindInternal        Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string

	// Field and Constraint are set on validation errors.
	Field      string
	Constraint string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, constraint, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Constraint: constraint, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Permission(message string) *Error {
	return &Error{Kind: KindPermission, Message: message}
}

func RateLimit(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

func AccountLimit(message string) *Error {
	return &Error{Kind: KindAccountLimit, Message: message}
}

func Duplicate(message string) *Error {
	return &Error{Kind: KindDuplicate, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Internal wraps an upstream failure on a write path. The message is what the
// requester sees; err stays available to logs through Unwrap.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindRateLimit, KindAccountLimit:
		return http.StatusTooManyRequests
	case KindDuplicate:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
