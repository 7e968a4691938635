package errors

import (
	"fmt"
)

// KBError is the structured error type for knowbase.
// It carries a stable code, a category derived from that code, and
// enough context for logging and machine consumption.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_201_SOURCE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Source, Processing, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new KBError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// SourceUnavailable creates a retryable source adapter error.
func SourceUnavailable(repo string, cause error) *KBError {
	return New(ErrCodeSourceUnavailable,
		fmt.Sprintf("source repository %q unavailable", repo), cause).
		WithDetail("repo", repo)
}

// ProcessingError creates a per-record processing error. These are
// recorded and counted; they never abort a batch.
func ProcessingError(path string, cause error) *KBError {
	return New(ErrCodeProcessingError,
		fmt.Sprintf("failed to process record %q", path), cause).
		WithDetail("path", path)
}

// QueryLimitExceeded creates the caller-visible rejection for result
// limits beyond the hard cap. Never a silent truncation.
func QueryLimitExceeded(requested, hardCap int) *KBError {
	return New(ErrCodeQueryLimitExceeded,
		fmt.Sprintf("requested limit %d exceeds hard cap %d", requested, hardCap), nil).
		WithDetail("requested", fmt.Sprintf("%d", requested)).
		WithDetail("cap", fmt.Sprintf("%d", hardCap))
}

// StoreConflict creates the error for concurrent revision-replace on
// the same repository. Retryable: the later writer waits.
func StoreConflict(repo string) *KBError {
	return New(ErrCodeStoreConflict,
		fmt.Sprintf("concurrent replace in progress for repository %q", repo), nil).
		WithDetail("repo", repo)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KBError); ok {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KBError); ok {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a KBError.
// Returns empty string if not a KBError.
func GetCode(err error) string {
	if ke, ok := err.(*KBError); ok {
		return ke.Code
	}
	return ""
}
