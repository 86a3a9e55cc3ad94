// Package errors defines the sentinel errors shared by the matching engine
// and its collaborators, plus AppError for mapping failures onto HTTP
// responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Ingestion errors. Fatal to the build, never retried.
	ErrMalformedRecord = errors.New("malformed record")
	ErrMalformedIndex  = errors.New("malformed index")
	ErrEmptyCorpus     = errors.New("cannot index an empty corpus")

	// Resource errors. Fatal at startup.
	ErrCorpusNotFound = errors.New("corpus not found")

	// Lookup misses surfaced explicitly.
	ErrUnknownID = errors.New("unknown id")
	ErrCacheMiss = errors.New("cache miss")

	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// AppError attaches a user-facing message and HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode picks the response status for err. An AppError's own status
// wins; otherwise the wrapped sentinel decides.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrUnknownID), errors.Is(err, ErrCorpusNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrMalformedIndex):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
