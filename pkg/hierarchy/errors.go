package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node id or code does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrDuplicateCode is returned when a code already exists in the live or
	// archive table.
	ErrDuplicateCode = errors.New("node code already exists")

	// ErrDuplicateID is returned when an id already exists in the live or
	// archive table.
	ErrDuplicateID = errors.New("node id already exists")

	// ErrSelfReferential is returned when an edge would link a node to itself.
	ErrSelfReferential = errors.New("self-referential edge")

	// ErrCycleDetected is returned when an edge would make a node its own
	// ancestor.
	ErrCycleDetected = errors.New("edge would create a cycle")

	// ErrEdgeExists is returned when the direct edge is already present.
	ErrEdgeExists = errors.New("edge already exists")

	// ErrPrimaryKeyRequired is returned when a mutation is missing a
	// mandatory id.
	ErrPrimaryKeyRequired = errors.New("primary key required")

	// ErrUnauthorized is returned when the acting caller lacks rights.
	// Produced by collaborators and surfaced unchanged.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorageFailure wraps store or cache I/O errors. Operations failing
	// with it are safe to retry.
	ErrStorageFailure = errors.New("storage failure")
)

// IsNotFoundError checks if the error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether the error is a caller mistake that will
// not succeed on retry.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrSelfReferential) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrEdgeExists) ||
		errors.Is(err, ErrPrimaryKeyRequired)
}

// IsStorageFailure checks if the error is or wraps ErrStorageFailure.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// NewStorageFailure wraps an underlying store error so callers can classify
// it as retryable.
func NewStorageFailure(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, cause)
}
