// Package errors provides structured error types for the parquet-writer
// library. All errors include a category, code, message, and retryable flag
// for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure domain.
type ErrorCategory string

const (
	ErrCategorySchema    ErrorCategory = "SCHEMA"
	ErrCategoryFill      ErrorCategory = "FILL"
	ErrCategoryAlignment ErrorCategory = "ALIGNMENT"
	ErrCategoryLifecycle ErrorCategory = "LIFECYCLE"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeInvalidLayout  = "INVALID_LAYOUT"
	CodeMissingKey     = "MISSING_KEY"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeDuplicateField = "DUPLICATE_FIELD"
	CodeEmptyFields    = "EMPTY_FIELDS"
	CodeStructDepth    = "STRUCT_DEPTH"
	CodeListDimension  = "LIST_DIMENSION"

	// Fill codes
	CodeUnknownColumn = "UNKNOWN_COLUMN"
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeShapeMismatch = "SHAPE_MISMATCH"
	CodeFieldOrder    = "FIELD_ORDER"

	// Alignment codes
	CodeRowMisaligned = "ROW_MISALIGNED"

	// Lifecycle codes
	CodeInvalidState    = "INVALID_STATE"
	CodeAlreadyFinished = "ALREADY_FINISHED"
	CodeSessionAborted  = "SESSION_ABORTED"

	// Storage codes
	CodeSinkOpenFailed  = "SINK_OPEN_FAILED"
	CodeSinkWriteFailed = "SINK_WRITE_FAILED"
	CodeSinkCloseFailed = "SINK_CLOSE_FAILED"
	CodeUploadFailed    = "UPLOAD_FAILED"
	CodeJournalFailed   = "JOURNAL_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// WriteError is the structured error type used throughout the library.
type WriteError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *WriteError) Is(target error) bool {
	var t *WriteError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new WriteError.
func New(category ErrorCategory, code, message string) *WriteError {
	return &WriteError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new WriteError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *WriteError {
	return &WriteError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *WriteError) WithDetails(details map[string]interface{}) *WriteError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a WriteError.
func GetCategory(err error) ErrorCategory {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a WriteError.
func GetCode(err error) string {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Only object-storage
// uploads are; every schema, fill, alignment and lifecycle error is fatal to
// the write session.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeUploadFailed
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *WriteError {
	return New(ErrCategorySchema, code, message)
}

func NewFillError(code, message string) *WriteError {
	return New(ErrCategoryFill, code, message)
}

func NewAlignmentError(message string) *WriteError {
	return New(ErrCategoryAlignment, CodeRowMisaligned, message)
}

func NewLifecycleError(code, message string) *WriteError {
	return New(ErrCategoryLifecycle, code, message)
}

func NewStorageError(code, message string, cause error) *WriteError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *WriteError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
