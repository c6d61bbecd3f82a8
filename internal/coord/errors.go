// Package coord defines the shared error taxonomy and worker role model
// for the Triad coordinator.
package coord

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordinator taxonomy. Callers match with errors.Is.
var (
	// ErrNotFound signals a referenced task, account, or convergence id is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a claim on a task that is no longer in the assigned
	// state. Expected under concurrent claiming; callers should try the next
	// task rather than abort.
	ErrConflict = errors.New("conflict")

	// ErrBudgetExhausted signals no active account with remaining credit.
	// Fatal for the phase that raised it.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrTransientStore signals a shared-store read or write failed after
	// bounded retries.
	ErrTransientStore = errors.New("transient store failure")

	// ErrDelegate signals the external completion call failed or returned an
	// error payload. Retryable for convergences.
	ErrDelegate = errors.New("delegate failure")
)

// ValidationError reports a missing or malformed required field. It is raised
// before any state mutation and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required field: %s", e.Field)
	}
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

// MissingField returns a ValidationError for an absent required field.
func MissingField(field string) error {
	return &ValidationError{Field: field}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
