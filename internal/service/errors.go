package service

import (
	"fmt"

	"notebook-rag/internal/apperrors"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = apperrors.ErrInvalidInput
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = apperrors.ErrNotFound
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
