package entity

import "errors"

// Sentinel errors for domain layer operations.
var (
	// ErrValidationFailed indicates that an entity violates one of its
	// invariants.
	ErrValidationFailed = errors.New("validation failed")
)
