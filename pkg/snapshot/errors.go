package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory categorizes errors for handling and reporting.
type ErrorCategory string

const (
	// ErrCategoryConfig indicates missing or invalid local configuration.
	ErrCategoryConfig ErrorCategory = "config"
	// ErrCategoryAuth indicates a credential acquisition failure.
	ErrCategoryAuth ErrorCategory = "auth"
	// ErrCategoryValidation indicates invalid input.
	ErrCategoryValidation ErrorCategory = "validation"
	// ErrCategoryTransport indicates a non-2xx response not otherwise classified.
	ErrCategoryTransport ErrorCategory = "transport"
	// ErrCategoryConflict indicates a 409 on snapshot creation.
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryJobFailed indicates a job that reached failed or cancelled.
	ErrCategoryJobFailed ErrorCategory = "job_failed"
	// ErrCategoryTimeout indicates a polling deadline was exceeded.
	ErrCategoryTimeout ErrorCategory = "timeout"
	// ErrCategoryMalformed indicates a remote document with an unexpected shape.
	ErrCategoryMalformed ErrorCategory = "malformed"
	// ErrCategoryFilesystem indicates a directory or file write failure.
	ErrCategoryFilesystem ErrorCategory = "filesystem"
	// ErrCategoryNotFound indicates a missing local record.
	ErrCategoryNotFound ErrorCategory = "not_found"
)

// Error is a structured error with category and context.
type Error struct {
	// Category classifies the error type.
	Category ErrorCategory

	// Message is a human-readable error message.
	Message string

	// Operation is the operation that failed.
	Operation string

	// JobID is the snapshot job involved, if any.
	JobID string

	// StatusCode is the HTTP status of the failed call, if any.
	StatusCode int

	// Cause is the underlying error.
	Cause error

	// Details contains additional error context.
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Message)
	if e.Operation != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Operation, e.Category, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error's category.
func (e *Error) Is(target error) bool {
	var sErr *Error
	if errors.As(target, &sErr) {
		return e.Category == sErr.Category
	}
	return false
}

// NewError creates a new Error.
func NewError(category ErrorCategory, message string) *Error {
	return &Error{
		Category: category,
		Message:  message,
		Details:  make(map[string]interface{}),
	}
}

// WithOperation sets the operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithJob sets the job ID.
func (e *Error) WithJob(id string) *Error {
	e.JobID = id
	return e
}

// WithStatusCode sets the HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// Convenience constructors for common error types

// ErrConfig creates a configuration error.
func ErrConfig(message string) *Error {
	return NewError(ErrCategoryConfig, message)
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *Error {
	return NewError(ErrCategoryAuth, message)
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return NewError(ErrCategoryValidation, message)
}

// ErrTransport creates a transport error for an unexpected HTTP status.
func ErrTransport(statusCode int, message string) *Error {
	return NewError(ErrCategoryTransport, message).WithStatusCode(statusCode)
}

// ErrConflict creates a conflict error.
func ErrConflict(message string) *Error {
	return NewError(ErrCategoryConflict, message).WithStatusCode(409)
}

// ErrJobFailed creates a terminal job failure carrying the remote payload.
func ErrJobFailed(job *ExportJob) *Error {
	return NewError(ErrCategoryJobFailed,
		fmt.Sprintf("snapshot job %s ended with status '%s': %v", job.ID, job.RawStatus, job.Raw)).
		WithJob(job.ID).
		WithDetail("payload", job.Raw)
}

// ErrTimeout creates a polling timeout error.
func ErrTimeout(message string) *Error {
	return NewError(ErrCategoryTimeout, message)
}

// ErrMalformed creates a malformed payload error.
func ErrMalformed(message string) *Error {
	return NewError(ErrCategoryMalformed, message)
}

// ErrFilesystem creates a filesystem error.
func ErrFilesystem(message string) *Error {
	return NewError(ErrCategoryFilesystem, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, id string) *Error {
	return NewError(ErrCategoryNotFound, fmt.Sprintf("%s not found: %s", resourceType, id)).
		WithDetail("resource_type", resourceType).
		WithDetail("id", id)
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Category == category
	}
	return false
}

// GetErrorJob extracts the job ID from an error.
func GetErrorJob(err error) string {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.JobID
	}
	return ""
}

// CreateRetryError is returned when a conflicting createSnapshot call could
// not be resolved by adopting an active job nor by one retry.
type CreateRetryError struct {
	// InitialError is the 409 that started conflict handling.
	InitialError error

	// RetryError is the failure of the retried creation.
	RetryError error

	// RetryDisplayName is the display name used for the retry.
	RetryDisplayName string
}

// Error implements the error interface.
func (e *CreateRetryError) Error() string {
	var b strings.Builder
	b.WriteString("createSnapshot returned 409 and retry with unique displayName failed. ")
	fmt.Fprintf(&b, "Initial error: %v. ", e.InitialError)
	fmt.Fprintf(&b, "Retry error (displayName %q): %v", e.RetryDisplayName, e.RetryError)
	return b.String()
}

// Unwrap exposes both failures to errors.Is and errors.As.
func (e *CreateRetryError) Unwrap() []error {
	return []error{e.InitialError, e.RetryError}
}
