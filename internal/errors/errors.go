// Package errors provides the client's kinded error type
package errors

// Import as perr to keep the stdlib errors package usable alongside it

import (
	stderrs "errors"
	"fmt"
)

// Kind classifies a failure by the scope it aborts
type Kind uint8

const (
	// KindUnknown is for unclassified errors
	KindUnknown Kind = iota

	// KindConfig is for missing or invalid settings, fatal before any network activity
	KindConfig

	// KindTransport is for non-success HTTP status, network failure or undecodable bodies
	KindTransport

	// KindJobFailure is for jobs that reached a terminal non-success status
	KindJobFailure

	// KindIO is for filesystem setup, read and write failures
	KindIO
)

// String returns a short label for logs
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindJobFailure:
		return "job"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the structured error type
// op names the failing operation, status carries the HTTP status for transport errors
type Error struct {
	orig   error
	msg    string
	kind   Kind
	op     string
	status int
}

// New creates an *Error without a cause
func New(kind Kind, op, msg string) *Error {
	return &Error{kind: kind, op: op, msg: msg}
}

// Wrap creates an *Error around a cause; returns nil when err is nil
func Wrap(err error, kind Kind, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{orig: err, kind: kind, op: op, msg: msg}
}

// Config builds a KindConfig error
func Config(msg string, args ...any) *Error {
	return New(KindConfig, "config", fmt.Sprintf(msg, args...))
}

// Transport builds a KindTransport error carrying the HTTP status (0 when no response arrived)
func Transport(op string, status int, msg string) *Error {
	e := New(KindTransport, op, msg)
	e.status = status
	return e
}

// JobFailure builds a KindJobFailure error
func JobFailure(op, msg string) *Error {
	return New(KindJobFailure, op, msg)
}

// IO wraps a filesystem failure
func IO(err error, op string) error {
	return Wrap(err, KindIO, op, op)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Kind returns the error kind
func (e *Error) Kind() Kind { return e.kind }

// Op returns the operation label
func (e *Error) Op() string { return e.op }

// StatusCode returns the HTTP status attached to a transport error
func (e *Error) StatusCode() int { return e.status }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts a Kind from any error, defaulting to Unknown
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.kind
	}
	return KindUnknown
}

// IsKind reports whether err has the given kind
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	if e, ok := As(err); ok {
		return e.status
	}
	return 0
}

// WithOp attaches an operation label (copy-on-write); foreign errors are returned unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}
