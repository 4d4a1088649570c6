package scheduling

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. Callers map kinds to transport status codes.
type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindUnavailable  Kind = "unavailable"
)

// Details carries structured context so callers can react programmatically.
type Details map[string]interface{}

// Error is the value every engine operation fails with.
type Error struct {
	Kind    Kind
	Message string
	Details Details
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool { return e.Kind == KindUnavailable }

// KindOf returns the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func validationError(msg string, details Details) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func forbidden(msg string, details Details) *Error {
	return &Error{Kind: KindForbidden, Message: msg, Details: details}
}

func notFound(msg string, details Details) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Details: details}
}

func invalidState(msg string, details Details) *Error {
	return &Error{Kind: KindInvalidState, Message: msg, Details: details}
}

func conflict(msg string, details Details) *Error {
	return &Error{Kind: KindConflict, Message: msg, Details: details}
}

// unavailable wraps a dependency failure. Engine errors pass through untouched.
func unavailable(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:    KindUnavailable,
		Message: op + " failed, please retry",
		Details: Details{"retryable": true},
		Err:     err,
	}
}
