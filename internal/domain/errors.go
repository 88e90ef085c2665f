package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure so callers can decide whether to
// retry, surface to the caller, or give up.
type ErrorKind string

const (
	// KindValidation: bad input. Surfaced immediately, never retried.
	KindValidation ErrorKind = "validation"
	// KindNotFound: a required record does not exist. Not retried —
	// retrying without fixing the data cannot succeed.
	KindNotFound ErrorKind = "not_found"
	// KindTransient: infrastructure trouble or an operation that is
	// simply not done yet. Safe to retry.
	KindTransient ErrorKind = "transient"
	// KindFatal: retrying cannot help (e.g. a reverted transaction).
	KindFatal ErrorKind = "fatal"
)

// Error is the pipeline's tagged error type. Callers switch on Kind
// rather than on concrete error identity.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to the status code used at the API
// boundary.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Transientf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

func Fatalf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindFatal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the error kind, defaulting to transient so unknown
// failures get retried rather than dropped.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}
