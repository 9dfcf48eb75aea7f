// Package apperr classifies failures into the small set of kinds the API
// exposes to clients.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindConfiguration Kind = "configuration"
	KindStore         Kind = "store"
	KindInternal      Kind = "internal"
)

// Error is a classified failure. Message is safe to show to clients; Err is
// the underlying cause and is never rendered.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or empty request input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Auth reports a missing or invalid credential.
func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

// Forbidden reports an authenticated caller acting outside its rights.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a write that lost against concurrent state.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Configuration reports an entity missing setup required by the operation,
// e.g. a seller without a payout address.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a persistence failure.
func Store(err error, op string) *Error {
	return &Error{Kind: KindStore, Message: op, Err: err}
}

// Kinder is implemented by typed domain errors that carry their own kind.
type Kinder interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// PublicMessage returns the client-safe message for err. Internal and store
// failures get a generic message.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInternal, KindStore:
		return "internal server error"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var k Kinder
	if errors.As(err, &k) {
		if ke, ok := k.(error); ok {
			return ke.Error()
		}
	}
	return err.Error()
}
