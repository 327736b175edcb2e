package bridge

import (
	"errors"
	"fmt"
)

// Protocol error codes, also used as request status labels.
const (
	CodeInvalidInput  = "invalid_input"
	CodeParse         = "parse"
	CodeUnknownMethod = "unknown_method"
	CodeSerialization = "serialization"
)

const msgInvalidHandle = "Invalid handle or request data"

var (
	// ErrStateClosed is returned by every handler once the handle is destroyed.
	ErrStateClosed = errors.New("state closed")
	// ErrInvalidArgs is matched by handler errors caused by bad arguments.
	ErrInvalidArgs = errors.New("invalid args")
)

// HandlerError is a failure inside a handler. Its text is what callers see
// as error_message.
type HandlerError struct {
	Method  string
	Message string
	Err     error
}

func (e *HandlerError) Error() string { return "Handler error: " + e.Message }

func (e *HandlerError) Unwrap() error { return e.Err }

// newHandlerError appends cause to msg when present.
func newHandlerError(method, msg string, cause error) *HandlerError {
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &HandlerError{Method: method, Message: msg, Err: cause}
}

func asHandlerError(method string, err error) *HandlerError {
	var he *HandlerError
	if errors.As(err, &he) {
		return he
	}
	return &HandlerError{Method: method, Message: err.Error(), Err: err}
}

func panicError(method string, r any) *HandlerError {
	if err, ok := r.(error); ok {
		return newHandlerError(method, "panic in handler", err)
	}
	return &HandlerError{Method: method, Message: fmt.Sprintf("panic in handler: %v", r)}
}

// ProtocolError is an envelope-level failure: bad input, unknown method or
// an unserializable result.
type ProtocolError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string { return e.Message }

func (e *ProtocolError) Unwrap() error { return e.Err }
