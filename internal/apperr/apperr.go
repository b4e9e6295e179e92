// Package apperr classifies the failures the workflow layer distinguishes:
// local validation, authentication, transport/server and session state.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindTransport  Kind = "transport"
	KindState      Kind = "state"
)

// GenericTransportMessage is reported when the server gives no message of its own.
const GenericTransportMessage = "request failed"

type Error struct {
	Kind    Kind
	Message string
	// Field names the offending form field for validation errors.
	Field string
	// Status is the HTTP (or envelope) status for auth and transport errors.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func Validationf(field, format string, args ...any) *Error {
	return Validation(field, fmt.Sprintf(format, args...))
}

func Auth(status int, msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return &Error{Kind: KindAuth, Status: status, Message: msg}
}

func Transport(status int, msg string, err error) *Error {
	if msg == "" {
		msg = GenericTransportMessage
	}
	return &Error{Kind: KindTransport, Status: status, Message: msg, Err: err}
}

func State(msg string) *Error {
	return &Error{Kind: KindState, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsTransport(err error) bool  { return KindOf(err) == KindTransport }
func IsState(err error) bool      { return KindOf(err) == KindState }
