package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested record was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a record with the same identifier already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownModel indicates a caller referenced a model that was never registered.
	// This is a programming-contract violation, never retried.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownField indicates a caller referenced a field the model does not define.
	// This is a programming-contract violation, never retried.
	ErrUnknownField = errors.New("unknown field")

	// ErrSchema indicates the backend returned data that contradicts the registered
	// schema (for example a joined result set whose base row has no identifier)
	ErrSchema = errors.New("schema inconsistency")

	// ErrTransform indicates a value could not be coerced between its logical and
	// wire representation, or a custom transform hook failed
	ErrTransform = errors.New("transform failed")

	// ErrTxUnsupported indicates the backend has no atomic transaction support
	ErrTxUnsupported = errors.New("transactions unsupported")
)
