// Package apperr defines the domain error taxonomy shared by services and the
// HTTP layer. Services wrap these with fmt.Errorf("...: %w") and handlers map
// them to status codes with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindAlreadySubmitted   Kind = "already_submitted"
	KindInactive           Kind = "inactive"
	KindValidation         Kind = "validation"
	KindForbidden          Kind = "forbidden"
)

// Error is a classified domain error with an optional field map for
// validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
	ErrAlreadySubmitted   = &Error{Kind: KindAlreadySubmitted, Message: "already submitted"}
	ErrInactive           = &Error{Kind: KindInactive, Message: "inactive"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
)

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func AlreadySubmitted(format string, args ...any) error {
	return &Error{Kind: KindAlreadySubmitted, Message: fmt.Sprintf(format, args...)}
}

func Inactive(format string, args ...any) error {
	return &Error{Kind: KindInactive, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidCredentials(format string, args ...any) error {
	return &Error{Kind: KindInvalidCredentials, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error carrying field-level messages.
func Validation(fields map[string]string) error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldsOf returns the field map of a validation error, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// MessageOf returns the message of the first *Error in err's chain without the
// wrapping context, suitable for client-facing responses.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
