package apperr

import (
	"errors"
	"fmt"
)

// Error kinds returned by the compression tasks.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrBackend      = errors.New("backend error")
	ErrProtocol     = errors.New("protocol error")
	ErrIO           = errors.New("io error")
)

// Error is a task failure tagged with its kind and the stage that failed.
type Error struct {
	Kind       error
	Stage      string
	StatusCode int    // HTTP status, backend errors only
	Body       string // response body or service message, backend errors only
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidInputf reports a missing or malformed task input.
func InvalidInputf(stage, format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Backend reports a non-success response from a compression service.
func Backend(stage string, status int, body string) error {
	return &Error{Kind: ErrBackend, Stage: stage, StatusCode: status, Body: body}
}

// BackendWrap reports a backend failure that has no HTTP status, such as a
// transport error or a library failure.
func BackendWrap(stage string, err error) error {
	return &Error{Kind: ErrBackend, Stage: stage, Err: err}
}

// Protocolf reports a well-formed response that lacks an expected field.
func Protocolf(stage, format string, args ...any) error {
	return &Error{Kind: ErrProtocol, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// IO reports a filesystem failure.
func IO(stage string, err error) error {
	return &Error{Kind: ErrIO, Stage: stage, Err: err}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
