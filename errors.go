package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("ledger: not found")
	ErrAlreadyExists = errors.New("ledger: already exists")
	ErrInvalidInput  = errors.New("ledger: invalid input")

	// Account errors
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrEmailTaken      = errors.New("ledger: email already registered")
	ErrUsageNotFound   = errors.New("ledger: usage ledger not found")

	// Plan errors
	ErrUnknownPlan = errors.New("ledger: unknown plan")

	// Credit errors
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	ErrInvalidAmount       = errors.New("ledger: invalid credit amount")

	// Billing errors
	ErrDuplicateEvent = errors.New("ledger: duplicate billing event")
	ErrEventNotFound  = errors.New("ledger: billing event not found")

	// Store errors
	ErrStoreClosed     = errors.New("ledger: store is closed")
	ErrMigrationFailed = errors.New("ledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUsageNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreClosed)
}
