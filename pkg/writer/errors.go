package writer

import (
	pwerrors "github.com/matthewfeickert/parquet-writer/internal/errors"
)

// Error classification helpers for callers.

// IsSchemaError reports whether err is a malformed or illegal layout error.
func IsSchemaError(err error) bool {
	return pwerrors.GetCategory(err) == pwerrors.ErrCategorySchema
}

// IsFillTypeError reports whether err is a value shape, kind, or struct_t
// field-order mismatch.
func IsFillTypeError(err error) bool {
	return pwerrors.GetCategory(err) == pwerrors.ErrCategoryFill
}

// IsAlignmentError reports whether err is a row-count mismatch across
// addressable buffers.
func IsAlignmentError(err error) bool {
	return pwerrors.GetCategory(err) == pwerrors.ErrCategoryAlignment
}

// IsLifecycleError reports whether err signals an operation invoked in an
// invalid writer state.
func IsLifecycleError(err error) bool {
	return pwerrors.GetCategory(err) == pwerrors.ErrCategoryLifecycle
}

// IsStorageError reports whether err originated at the sink, journal, or
// object-storage boundary.
func IsStorageError(err error) bool {
	return pwerrors.GetCategory(err) == pwerrors.ErrCategoryStorage
}
