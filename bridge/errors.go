package bridge

import (
	"errors"
	"fmt"

	"github.com/santif/pgbridge/handle"
)

// Status is the outcome code carried by every envelope
type Status uint8

const (
	StatusOK Status = iota
	StatusConnection
	StatusExecution
	StatusEncoding
	StatusBoundary
)

// String returns the status as used in logs and metric labels
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusConnection:
		return "connection_error"
	case StatusExecution:
		return "execution_error"
	case StatusEncoding:
		return "encoding_error"
	case StatusBoundary:
		return "boundary_error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

var (
	// ErrConnection matches errors raised while opening or closing a session
	ErrConnection = errors.New("connection error")

	// ErrExecution matches errors raised by the database while running a statement
	ErrExecution = errors.New("execution error")

	// ErrEncoding matches malformed or unsupported parameters
	ErrEncoding = errors.New("encoding error")

	// ErrBoundary matches misuse of handles, indexes and calls
	ErrBoundary = errors.New("boundary error")
)

func (s Status) sentinel() error {
	switch s {
	case StatusConnection:
		return ErrConnection
	case StatusExecution:
		return ErrExecution
	case StatusEncoding:
		return ErrEncoding
	default:
		return ErrBoundary
	}
}

// Error is a failure reported through an envelope.
// errors.Is matches both the status sentinel and the underlying cause.
type Error struct {
	Code    Status
	Message string
	cause   error
	text    []byte
}

func newError(code Status, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &Error{Code: code, Message: msg, cause: cause, text: []byte(msg)}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Code.sentinel()}
	}
	return []error{e.Code.sentinel(), e.cause}
}

// bytes returns the message as a stable byte slice for buffer views
func (e *Error) bytes() []byte {
	if e.text == nil {
		return []byte(e.Message)
	}
	return e.text
}

// boundaryError reports a handle that could not be used for op
func boundaryError(err error, op string) *Error {
	return newError(StatusBoundary, err, "%s", op)
}

// classify turns any error into a *Error.
// Handle failures and anything unrecognised are boundary errors.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, handle.ErrInvalidHandle) || errors.Is(err, handle.ErrStaleHandle) || errors.Is(err, handle.ErrTypeMismatch) {
		return boundaryError(err, "invalid handle")
	}
	return newError(StatusBoundary, err, "unexpected failure")
}
