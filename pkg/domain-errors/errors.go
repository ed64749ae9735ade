// Package domainerrors provides code-classified errors for the donation
// lifecycle. Services return these so transport layers can map them to HTTP
// statuses without string matching, and so tests can assert on the exact
// failure kind.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// Lifecycle error kinds. Each maps to exactly one failure mode of the
	// transition engine.
	CodeNotFound             Code = "not_found"
	CodeInvalidAmount        Code = "invalid_amount"
	CodeInvalidLabel         Code = "invalid_label"
	CodeInvalidState         Code = "invalid_state"
	CodeUnauthorized         Code = "unauthorized"
	CodeUnderpayment         Code = "underpayment"
	CodeValueExceedsDonation Code = "value_exceeds_donation"
	CodeArithmeticOverflow   Code = "arithmetic_overflow"
	CodeInsufficientFunds    Code = "insufficient_funds"

	// General-purpose kinds used by transport and infrastructure.
	CodeBadRequest Code = "bad_request"
	CodeConflict   Code = "conflict"
	CodeInternal   Code = "internal_error"
)

// Error is a domain error with a classification code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a domain code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or any error it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code carried by err, or CodeInternal if err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
