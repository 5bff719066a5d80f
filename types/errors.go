package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the store, index and search layers. Wrap
// them with fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTimeout         = errors.New("deadline exceeded")
)

// DimensionMismatchError reports a vector whose length differs from the
// corpus embedding dimension. Raised at write time by the store and at
// query time by the index, always before any external call.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// EmbeddingError wraps a failure of the embedding provider, including the
// provider handing back a malformed vector. Never retried silently.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
