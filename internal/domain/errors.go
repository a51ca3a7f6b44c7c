package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStaleVersion indicates a concurrent writer won; the caller holds
	// an outdated copy of the case and must re-read before retrying.
	ErrStaleVersion = errors.New("case version is stale")
)

// ValidationError is a recoverable caller error: malformed policy windows,
// missing required fields, too-short descriptions. It is surfaced for
// correction and is never recorded as an audit entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StateConflictError indicates an illegal transition, an already-terminal
// case, or a lost optimistic-concurrency race. The case is left untouched.
type StateConflictError struct {
	CaseID string
	From   State
	To     State
	Reason string
}

func (e *StateConflictError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("state conflict on case %s: %s -> %s: %s", e.CaseID, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("state conflict on case %s: %s", e.CaseID, e.Reason)
}

// IsStateConflict reports whether err is (or wraps) a StateConflictError,
// including the ErrStaleVersion sentinel.
func IsStateConflict(err error) bool {
	if errors.Is(err, ErrStaleVersion) {
		return true
	}
	var sc *StateConflictError
	return errors.As(err, &sc)
}
