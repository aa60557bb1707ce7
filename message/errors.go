package message

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownObject      = errors.New("unknown object")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrArgumentOutOfRange = errors.New("argument out of range")
	ErrProtocol           = errors.New("protocol error")
	ErrEncoding           = errors.New("encoding error")
	ErrCall               = errors.New("remote call failed")
	ErrTimeout            = errors.New("timeout")
)

// Error is a classified RPC failure. Use errors.Is with the Err* sentinels to
// check its kind.
type Error struct {
	kind error
	msg  string
	err  error
}

func (e *Error) Error() string {
	return e.msg
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.kind
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the sentinel this error is classified as.
func (e *Error) Kind() error {
	return e.kind
}

func UnknownObject(name string) error {
	return &Error{kind: ErrUnknownObject, msg: fmt.Sprintf("unknown object '%s'", name)}
}

func UnknownMethod(name string) error {
	return &Error{kind: ErrUnknownMethod, msg: fmt.Sprintf("unknown method '%s'", name)}
}

func ArgumentOutOfRange(index int) error {
	return &Error{kind: ErrArgumentOutOfRange, msg: fmt.Sprintf("no argument found at index %d", index)}
}

func Protocol(detail string) error {
	return &Error{kind: ErrProtocol, msg: "protocol error: " + detail}
}

func Encoding(err error) error {
	return &Error{kind: ErrEncoding, msg: "encoding error: " + err.Error(), err: err}
}

// Call wraps a handler failure. errors.As recovers the *CallError.
func Call(ce *CallError) error {
	return &Error{kind: ErrCall, msg: fmt.Sprintf("remote call failed with error '%s'", ce.Message), err: ce}
}

func Timeout(queue string) error {
	return &Error{kind: ErrTimeout, msg: fmt.Sprintf("timeout waiting for reply on '%s'", queue)}
}
