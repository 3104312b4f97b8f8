// Package apperr carries the outcome kinds every engagement action can end in.
package apperr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeInvalid         Code = "invalid"
	CodePrecondition    Code = "precondition"
	CodeConflict        Code = "conflict"
	CodePartial         Code = "partial"
	CodeTransient       Code = "transient"
	CodeInternal        Code = "internal"
)

type Error struct {
	Code    Code
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

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Message is the user-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalid:
		return http.StatusBadRequest
	case CodePrecondition:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodePartial:
		return http.StatusMultiStatus
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common outcomes shared across the subsystems.
var (
	ErrUnauthenticated = New(CodeUnauthenticated, "sign in required")
	ErrNotOwner        = New(CodeForbidden, "not the job owner")
	ErrJobNotOpen      = New(CodePrecondition, "job is not open")
	ErrJobNotOngoing   = New(CodePrecondition, "job is not ongoing")
	ErrSlotFull        = New(CodeConflict, "slot full")
)
