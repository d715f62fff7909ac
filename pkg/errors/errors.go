// Package errors defines the error taxonomy shared by the search core and the
// transport layer, and maps each class to an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotIndexed       = errors.New("index not built")
	ErrNotFound         = errors.New("not found")
	ErrBuild            = errors.New("index build failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrBuildInProgress  = errors.New("index build already in progress")
	ErrSyncInProgress   = errors.New("catalogue sync already in progress")
	ErrCorruptSnapshot  = errors.New("corrupt index snapshot")
	ErrUnavailable      = errors.New("service unavailable")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
	ErrDuplicateRecord  = errors.New("duplicate record")
	ErrEmptyVocabulary  = errors.New("empty vocabulary")
	ErrNoIndexableInput = errors.New("no records with a description to index")
)

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

// ValidationError reports a rejected argument. It matches ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BuildError is returned by an index rebuild that did not commit. Stage names
// the step that failed; Indexed and Skipped report progress made before it.
type BuildError struct {
	Stage   string
	BuildID string
	Indexed int
	Skipped int
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("index build %s failed at %s (indexed=%d skipped=%d): %v",
		e.BuildID, e.Stage, e.Indexed, e.Skipped, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// NotFound wraps ErrNotFound with the kind and key that were missing.
func NotFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrNotFound)
}

// Code returns a short machine-readable class for err, used in response
// bodies next to the message.
func Code(err error) string {
	var valErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBuild):
		return "build_failed"
	case errors.As(err, &valErr), errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotIndexed):
		return "not_indexed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBuildInProgress):
		return "build_in_progress"
	case errors.Is(err, ErrSyncInProgress):
		return "sync_in_progress"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return "unavailable"
	default:
		return "internal"
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrBuild):
		return http.StatusInternalServerError
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBuildInProgress), errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrDuplicateRecord):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotIndexed), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error payload returned by the HTTP handlers.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// Response maps err to a status and body. Internal errors are reported with
// a generic message so causes do not leak to callers.
func Response(err error) (int, ErrorBody) {
	status := HTTPStatusCode(err)
	body := ErrorBody{Error: err.Error(), Code: Code(err)}
	var valErr *ValidationError
	if body.Code == "invalid_input" && errors.As(err, &valErr) {
		body.Field = valErr.Field
		body.Error = valErr.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		body.Error = appErr.Message
	}
	if status == http.StatusInternalServerError && body.Code == "internal" {
		body.Error = "internal error"
	}
	return status, body
}
