// Package apperrors defines the error taxonomy shared by the progression services.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown users, levels, missions and action keys.
	ErrNotFound = errors.New("not found")
	// ErrDisabled marks a known but disabled action.
	ErrDisabled = errors.New("disabled")
	// ErrLimitExceeded marks a daily cap or cooldown rejection.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrValidation marks malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrTransactionFailed wraps storage aborts; nothing was persisted.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrRewardGrantFailed marks a secondary reward step that failed.
	ErrRewardGrantFailed = errors.New("reward grant failed")
	// ErrConcurrentUpdate is returned when a compare-and-set lost a race.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
