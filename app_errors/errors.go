// Package app_errors defines the error kinds shared by the recorder's components.
package app_errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the component that produced it.
type Kind string

const (
	KindDevice        Kind = "device"
	KindDecoder       Kind = "decoder"
	KindUpload        Kind = "upload"
	KindPlayback      Kind = "playback"
	KindConfiguration Kind = "configuration"
)

// Error is the base error type with a kind, the failed operation and a cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := string(e.Kind) + " error"
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Device(op string, err error) *Error        { return New(KindDevice, op, err) }
func Decoder(op string, err error) *Error       { return New(KindDecoder, op, err) }
func Upload(op string, err error) *Error        { return New(KindUpload, op, err) }
func Playback(op string, err error) *Error      { return New(KindPlayback, op, err) }
func Configuration(op string, err error) *Error { return New(KindConfiguration, op, err) }

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsFatal returns true for errors that must terminate the process.
func IsFatal(err error) bool {
	return IsKind(err, KindDevice) || IsKind(err, KindConfiguration)
}
