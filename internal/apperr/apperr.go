// Package apperr defines the error taxonomy shared by the interview
// lifecycle, the evaluation pipeline, and their callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeAlreadyRunning      Code = "ALREADY_RUNNING"
	CodeNotReady            Code = "NOT_READY"
	CodeRecordingNotStarted Code = "RECORDING_NOT_STARTED"
	CodeMissingData         Code = "MISSING_DATA"
	CodeStageFailure        Code = "STAGE_FAILURE"
	CodeTimeout             Code = "TIMEOUT"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a classified error. Two *Error values match under errors.Is when
// their codes are equal, so the package sentinels can be used as targets.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition}
	ErrAlreadyRunning      = &Error{Code: CodeAlreadyRunning}
	ErrNotReady            = &Error{Code: CodeNotReady}
	ErrRecordingNotStarted = &Error{Code: CodeRecordingNotStarted}
	ErrMissingData         = &Error{Code: CodeMissingData}
	ErrStageFailure        = &Error{Code: CodeStageFailure}
	ErrTimeout             = &Error{Code: CodeTimeout}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput}
)

// New builds a classified error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable(code),
	}
}

// Wrap classifies err under code.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable(code),
		Err:       err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry after backoff.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// HTTPStatus maps err to the status code returned by the API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeAlreadyRunning:
		return http.StatusConflict
	case CodeNotReady, CodeRecordingNotStarted, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func retryable(code Code) bool {
	switch code {
	case CodeAlreadyRunning, CodeTimeout, CodeStageFailure:
		return true
	default:
		return false
	}
}
