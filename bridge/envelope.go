package bridge

import (
	"fmt"

	"github.com/santif/pgbridge/handle"
	"github.com/santif/pgbridge/observability"
)

// Void is the payload of calls that return nothing
type Void struct{}

// Envelope is the result of every bridge call.
// Status is StatusOK exactly when Error is handle.Nil; otherwise Payload is the zero value.
type Envelope[T any] struct {
	Status  Status
	Payload T
	Error   handle.Token
}

// OK reports whether the call succeeded. Check it before reading Payload.
func (e Envelope[T]) OK() bool {
	return e.Status == StatusOK
}

// complete builds the envelope for op, registering err behind a token when set
func complete[T any](b *Bridge, op string, v T, err error) Envelope[T] {
	if err == nil {
		b.record(op, StatusOK)
		return Envelope[T]{Status: StatusOK, Payload: v}
	}

	e := classify(err)
	if e.Code == StatusOK {
		e.Code = StatusBoundary
	}
	tok := handle.Wrap(b.handles, e)
	b.record(op, e.Code)

	fields := []observability.Field{
		observability.NewField("op", op),
		observability.NewField("status", e.Code.String()),
		observability.NewField("error_token", tok.String()),
	}
	switch e.Code {
	case StatusBoundary:
		b.logger.Debug(e.Message, fields...)
	case StatusEncoding:
		b.logger.Warn(e.Message, fields...)
	default:
		b.logger.Error("database call failed", e, fields...)
	}

	return Envelope[T]{Status: e.Code, Error: tok}
}

// guard converts a panic inside op into a boundary error envelope
func guard[T any](b *Bridge, op string, env *Envelope[T]) {
	if r := recover(); r != nil {
		var zero T
		*env = complete(b, op, zero, newError(StatusBoundary, nil, "panic in %s: %v", op, r))
	}
}

func (b *Bridge) record(op string, status Status) {
	b.metrics.Call(op, status.String())
	b.metrics.SetLiveHandles(b.LiveHandles())
}

// ErrorNew registers a new error and returns its token
func (b *Bridge) ErrorNew(code Status, message string) handle.Token {
	if code == StatusOK {
		code = StatusBoundary
	}
	return handle.Wrap(b.handles, newError(code, nil, "%s", message))
}

// ErrorMessage returns a view of the error's message, valid until the error is freed
func (b *Bridge) ErrorMessage(tok handle.Token) (env Envelope[Buffer]) {
	defer guard(b, opErrorMessage, &env)

	e, err := handle.Unwrap[*Error](b.handles, tok)
	if err != nil {
		return complete(b, opErrorMessage, Buffer{}, boundaryError(err, "error message"))
	}
	return complete(b, opErrorMessage, FromBytes(e.bytes()), nil)
}

// ErrorCode returns the status code of the error behind tok
func (b *Bridge) ErrorCode(tok handle.Token) (env Envelope[Status]) {
	defer guard(b, opErrorCode, &env)

	e, err := handle.Unwrap[*Error](b.handles, tok)
	if err != nil {
		return complete(b, opErrorCode, StatusOK, boundaryError(err, "error code"))
	}
	return complete(b, opErrorCode, e.Code, nil)
}

// ErrorFree releases the error behind tok
func (b *Bridge) ErrorFree(tok handle.Token) (env Envelope[Void]) {
	defer guard(b, opErrorFree, &env)

	if _, err := handle.Release[*Error](b.handles, tok); err != nil {
		return complete(b, opErrorFree, Void{}, boundaryError(err, "free error"))
	}
	return complete(b, opErrorFree, Void{}, nil)
}

// Err returns the error behind tok as a Go error, or nil if tok is not a live error.
// It does not release the token.
func (b *Bridge) Err(tok handle.Token) error {
	e, err := handle.Unwrap[*Error](b.handles, tok)
	if err != nil {
		return nil
	}
	return e
}

// TakeErr returns the error behind a failed envelope's token and frees the token
func TakeErr[T any](b *Bridge, env Envelope[T]) error {
	if env.OK() {
		return nil
	}
	e, err := handle.Release[*Error](b.handles, env.Error)
	if err != nil {
		return fmt.Errorf("%w: error token %s: %w", ErrBoundary, env.Error, err)
	}
	return e
}
