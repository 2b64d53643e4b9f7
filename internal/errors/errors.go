package errors

import (
	"fmt"
)

// HelpError is the structured error type for onechelp.
// It carries a stable code, a category for boundary mapping, and a
// retryable flag consumed by the reindex write path.
type HelpError struct {
	// Code is the unique error code (e.g., "ERR_202_UNSUPPORTED_FORMAT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Parse, Store, Validation, etc.).
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
func (e *HelpError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *HelpError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with HelpError.
func (e *HelpError) Is(target error) bool {
	if t, ok := target.(*HelpError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *HelpError) WithDetail(key, value string) *HelpError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new HelpError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *HelpError {
	return &HelpError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a HelpError from an existing error.
// The error's message becomes the HelpError message.
func Wrap(code string, err error) *HelpError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ParseError creates an archive parse error.
func ParseError(message string, cause error) *HelpError {
	return New(ErrCodeEntryMalformed, message, cause)
}

// UnsupportedFormatError creates a fatal archive format error.
func UnsupportedFormatError(message string, cause error) *HelpError {
	return New(ErrCodeUnsupportedFormat, message, cause)
}

// StoreError creates a transient document store error.
func StoreError(message string, cause error) *HelpError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *HelpError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError creates a zero-result lookup error. Callers at the
// protocol boundary report it as an explicit empty result, not a fault.
func NotFoundError(message string) *HelpError {
	return New(ErrCodeNotFound, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HelpError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a HelpError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HelpError); ok {
		return he.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current rebuild without retry.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HelpError); ok {
		return he.Severity == SeverityFatal
	}
	return false
}

// IsNotFound reports whether an error represents a legitimate
// zero-result lookup.
func IsNotFound(err error) bool {
	return GetCategory(err) == CategoryNotFound
}

// GetCode extracts the error code from a HelpError.
// Returns empty string if not a HelpError.
func GetCode(err error) string {
	if he, ok := err.(*HelpError); ok {
		return he.Code
	}
	return ""
}

// GetCategory extracts the category from a HelpError.
// Returns empty string if not a HelpError.
func GetCategory(err error) Category {
	if he, ok := err.(*HelpError); ok {
		return he.Category
	}
	return ""
}
