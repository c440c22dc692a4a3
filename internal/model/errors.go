package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so transports can pick a status code and
// callers can decide whether to retry.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindCapacity        ErrorKind = "capacity_exceeded"
	KindConflict        ErrorKind = "conflict"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindExternalPayload ErrorKind = "external_payload"
	KindNotFound        ErrorKind = "not_found"
)

// Error is the domain error type. Two errors match under errors.Is when
// their kinds are equal, so the sentinels below work as category checks.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// Category sentinels for errors.Is.
var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrCapacityExceeded = &Error{Kind: KindCapacity, Message: "event is at capacity"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "concurrent modification"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "not allowed"}
	ErrExternalPayload  = &Error{Kind: KindExternalPayload, Message: "unverifiable external payload"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf reports a request that breaks a business rule.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Capacityf reports that admitting the user would exceed capacity.
func Capacityf(format string, args ...any) *Error {
	return newError(KindCapacity, format, args...)
}

// Conflictf reports state that changed under the caller.
func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Unauthorizedf reports a caller lacking the required role.
func Unauthorizedf(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

// NotFoundf reports a missing event, registration or payment.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// ExternalPayload wraps a webhook verification or decoding failure.
func ExternalPayload(msg string, cause error) *Error {
	return &Error{Kind: KindExternalPayload, Message: msg, Cause: cause}
}

// ConflictCause wraps a retryable storage failure such as a lock timeout.
func ConflictCause(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
