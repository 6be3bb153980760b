package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	// ErrInsufficientData marks a competition with no standings or fixtures.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotFound marks a missing result, prediction, or competition.
	ErrNotFound = errors.New("not found")
	// ErrProtectedResult marks a deletion attempt on a latest or important result.
	ErrProtectedResult = errors.New("result is protected")
	// ErrCancelled marks a run aborted by the caller's deadline or cancellation.
	ErrCancelled = errors.New("run cancelled")
)

// ValidationError rejects a malformed request before any computation begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a storage failure. Transient failures are safe to
// retry; everything else is surfaced as-is.
type PersistenceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable persistence failure.
func IsTransient(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Transient
}
