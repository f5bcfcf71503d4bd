// Package apperrors defines the error taxonomy shared by the command,
// query, and eventstore layers, and the stable codes attached to each
// error so callers on the wire boundary can map them to RPC-style statuses
// without string-matching messages.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error kinds every layer maps its failures onto.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindFailedPrecondition Kind = "failed_precondition"
	KindPermissionDenied   Kind = "permission_denied"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// Error is the taxonomy-carrying error type returned by every layer.
// Code is a stable identifier (e.g. "COMMAND-App10") that survives message
// wording changes; Kind is the wire-mappable category.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// InvalidArgument reports a malformed or out-of-range request field.
func InvalidArgument(code, msg string, cause error) *Error {
	return new_(KindInvalidArgument, code, msg, cause)
}

// NotFound reports a missing aggregate, projection row, or checkpoint.
func NotFound(code, msg string, cause error) *Error {
	return new_(KindNotFound, code, msg, cause)
}

// AlreadyExists reports a unique-constraint violation.
func AlreadyExists(code, msg string, cause error) *Error {
	return new_(KindAlreadyExists, code, msg, cause)
}

// FailedPrecondition reports a state that blocks the requested transition,
// including optimistic-concurrency conflicts.
func FailedPrecondition(code, msg string, cause error) *Error {
	return new_(KindFailedPrecondition, code, msg, cause)
}

// PermissionDenied reports a casbin policy check rejecting the command.
func PermissionDenied(code, msg string, cause error) *Error {
	return new_(KindPermissionDenied, code, msg, cause)
}

// Unavailable reports a transient infrastructure failure worth retrying.
func Unavailable(code, msg string, cause error) *Error {
	return new_(KindUnavailable, code, msg, cause)
}

// Internal reports a bug or unexpected invariant violation.
func Internal(code, msg string, cause error) *Error {
	return new_(KindInternal, code, msg, cause)
}

// As extracts the Kind of err if it (or something it wraps) is an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
