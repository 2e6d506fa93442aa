// Package errs defines the error kinds shared by the catalog, audio, playback,
// progress and sync layers, and maps them onto API error codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind sentinels. Match with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrMalformed    = errors.New("malformed data")
	ErrNetwork      = errors.New("network error")
	ErrPlayback     = errors.New("playback error")
	ErrPersistence  = errors.New("persistence error")
	ErrInvalid      = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a classified failure. It unwraps to both its Kind and its cause.
type Error struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error of the given kind.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing entity, naming it in the detail.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Malformed reports data that could not be decoded.
func Malformed(op string, err error) *Error {
	return &Error{Kind: ErrMalformed, Op: op, Err: err}
}

// Network reports a transport failure or an unexpected remote response.
func Network(op string, err error) *Error {
	return &Error{Kind: ErrNetwork, Op: op, Err: err}
}

// Playback reports an engine or output device failure.
func Playback(op string, err error) *Error {
	return &Error{Kind: ErrPlayback, Op: op, Err: err}
}

// Persistence reports a storage read/write failure.
func Persistence(op string, err error) *Error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// Invalid reports a rejected request argument.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalid, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Code returns the API error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrMalformed):
		return "MALFORMED_DATA"
	case errors.Is(err, ErrNetwork):
		return "NETWORK_ERROR"
	case errors.Is(err, ErrPlayback):
		return "PLAYBACK_ERROR"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	case errors.Is(err, ErrInvalid):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, ErrPlayback):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
