package session

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes engine errors into the closed taxonomy from the
// external error contract: not_found, invalid_state, invalid_argument,
// busy, internal.
type ErrorKind string

const (
	// KindNotFound: referenced entity does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidState: operation rejected by the state machine.
	KindInvalidState ErrorKind = "invalid_state"
	// KindInvalidArgument: malformed input.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindBusy: write lock or log busy-timeout expired.
	KindBusy ErrorKind = "busy"
	// KindInternal: schema migration failure, I/O failure, unexpected DB error.
	KindInternal ErrorKind = "internal"
)

// Error is the engine's single error type. It carries a Kind for
// collaborators that need to branch on the externally documented error
// code, plus an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewNotFoundError builds a KindNotFound error.
func NewNotFoundError(message string) *Error {
	return newErr(KindNotFound, message, nil)
}

// NewInvalidStateError builds a KindInvalidState error.
func NewInvalidStateError(message string) *Error {
	return newErr(KindInvalidState, message, nil)
}

// NewInvalidArgumentError builds a KindInvalidArgument error.
func NewInvalidArgumentError(message string) *Error {
	return newErr(KindInvalidArgument, message, nil)
}

// NewBusyError builds a KindBusy error wrapping the underlying cause.
func NewBusyError(message string, cause error) *Error {
	return newErr(KindBusy, message, cause)
}

// NewInternalError builds a KindInternal error wrapping the underlying cause.
func NewInternalError(message string, cause error) *Error {
	return newErr(KindInternal, message, cause)
}

// kindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound reports whether err is (or wraps) a KindNotFound error.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsInvalidState reports whether err is (or wraps) a KindInvalidState error.
func IsInvalidState(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvalidState
}

// IsInvalidArgument reports whether err is (or wraps) a KindInvalidArgument error.
func IsInvalidArgument(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvalidArgument
}

// IsBusy reports whether err is (or wraps) a KindBusy error.
func IsBusy(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBusy
}

// IsInternal reports whether err is (or wraps) a KindInternal error.
func IsInternal(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInternal
}
