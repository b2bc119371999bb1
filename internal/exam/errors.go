package exam

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind surfaced to callers.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeAccessDenied Code = "ACCESS_DENIED"
	CodeExpired      Code = "EXPIRED"
	CodeConflict     Code = "CONFLICT"
	CodeValidation   Code = "VALIDATION"
)

// Error is the domain error returned by the lifecycle manager and the stores.
type Error struct {
	Code    Code
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

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, exam.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAccessDenied = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrExpired      = &Error{Code: CodeExpired, Message: "exam time has expired"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "invalid input"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the domain code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
