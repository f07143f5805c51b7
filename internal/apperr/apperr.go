// Package apperr is the error taxonomy shared by the service layer and the
// HTTP handlers. Every failure surfaced to a caller carries a stable Kind, a
// machine readable Code and a human readable Message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	// KindUnavailable is a dependency failure (store down, connection lost).
	// It must never be reported as an authorization failure.
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(code, message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

func NotFound(message string) *Error {
	return New(KindNotFound, "not_found", message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, "forbidden", message)
}

func Unavailable(message string, err error) *Error {
	return Wrap(KindUnavailable, "dependency_unavailable", message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, "internal_error", message, err)
}

// As extracts the *Error from err. Anything that is not an *Error is
// reported as an internal failure so callers always get a kind.
func As(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Internal("Unexpected error", err)
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}
