package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced to the operator.
type Kind string

const (
	KindPrecondition Kind = "precondition"
	KindValidation   Kind = "validation"
	KindTransport    Kind = "transport"
	KindFormat       Kind = "format"
	KindProtocol     Kind = "protocol"
	KindServer       Kind = "server"
	KindCapability   Kind = "capability"
)

// Error is a classified failure. None of them are fatal; the operator may
// always retry the same intent.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	// Body is the raw response payload for format and server errors.
	Body string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg = msg + ":\n" + e.Body
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
