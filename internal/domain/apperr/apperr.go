// Package apperr defines the error kinds surfaced by the service layer.
//
// Every failure returned by a service operation carries exactly one Kind. Wrapping an *Error with
// fmt.Errorf keeps its kind; KindOf reports KindInternal for errors that were never tagged.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindConflict          Kind = "CONFLICT"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindInternal          Kind = "INTERNAL"
)

// Error is a tagged failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func InvalidArgument(op, message string) *Error {
	return E(KindInvalidArgument, op, message, nil)
}

func NotFound(op, message string) *Error {
	return E(KindNotFound, op, message, nil)
}

func InsufficientStock(op, message string) *Error {
	return E(KindInsufficientStock, op, message, nil)
}

func Conflict(op, message string, err error) *Error {
	return E(KindConflict, op, message, err)
}

func Unavailable(op, message string, err error) *Error {
	return E(KindUnavailable, op, message, err)
}

func Internal(op, message string, err error) *Error {
	return E(KindInternal, op, message, err)
}

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message returns the client-safe message of a tagged error. Untagged errors are opaque.
func Message(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Message != "" {
		return tagged.Message
	}
	return "internal error"
}
