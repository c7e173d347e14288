// Package apperror defines the failure taxonomy shared by services and the HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can map it to a status code.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindBadRequest   Kind = "bad_request"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Machine-readable codes surfaced to API clients.
const (
	CodeAlreadyEnrolled        = "AlreadyEnrolled"
	CodeEnrollmentClosed       = "EnrollmentClosed"
	CodeCapacityExceeded       = "CapacityExceeded"
	CodeEnrollmentCompleted    = "EnrollmentCompleted"
	CodeAssignmentClosed       = "AssignmentClosed"
	CodeAssignmentNotPublished = "AssignmentNotPublished"
	CodeAlreadySubmitted       = "AlreadySubmitted"
	CodeLateDeadlinePassed     = "LateDeadlinePassed"
	CodeInvalidTransition      = "InvalidTransition"
	CodeInvalidReorder         = "InvalidReorder"
	CodeGradingModeMismatch    = "GradingModeMismatch"
)

// Error carries a Kind, an optional code and a client-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind and code, so callers can compare against templates.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	if other.Kind != e.Kind {
		return false
	}
	return other.Code == "" || other.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NotFound reports a missing entity, e.g. NotFound("submission").
func NotFound(entity string) *Error {
	return newError(KindNotFound, "", entity+" not found")
}

// Conflict reports a duplicate or a write against a frozen entity.
func Conflict(code, message string) *Error {
	return newError(KindConflict, code, message)
}

// InvalidState reports an illegal status transition.
func InvalidState(code, message string) *Error {
	return newError(KindInvalidState, code, message)
}

// BadRequest reports malformed or out-of-range input.
func BadRequest(code, message string) *Error {
	return newError(KindBadRequest, code, message)
}

// Forbidden reports an action the caller may not perform.
func Forbidden(message string) *Error {
	return newError(KindForbidden, "", message)
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of a classified error, or "" otherwise.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// MessageOf returns the client-safe message of a classified error.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
