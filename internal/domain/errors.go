package domain

import "errors"

// Structural misuse errors. Business-rule failures are never reported through
// these; they surface as violations in a ValidationResult.
var (
	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidField is returned for unknown or malformed fields in an update or draft
	ErrInvalidField = errors.New("invalid field")

	// ErrAlreadyDisputed is returned when a transaction is disputed twice
	ErrAlreadyDisputed = errors.New("transaction already disputed")

	// ErrImmutableFieldViolation is returned when settlement fields of a terminal transaction are written
	ErrImmutableFieldViolation = errors.New("immutable field violation")
)

// Errors raised by the surrounding services and adapters
var (
	ErrNotFound        = errors.New("not found")
	ErrNotDisputable   = errors.New("transaction is not eligible for dispute")
	ErrPolicyMismatch  = errors.New("control policy does not belong to card")
	ErrLockNotAcquired = errors.New("card lock not acquired")
)
