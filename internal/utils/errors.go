package utils

import (
	"errors"
	"fmt"
)

// ValidationError represents an error occurring during data validation.
// Validation failures are rejected before any state mutation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates an entity unknown to a registry or store. Callers
// decide whether to create the entity or drop the event; no partial writes
// happen on this path.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// NewNotFoundError creates a NotFoundError for the given entity and key.
func NewNotFoundError(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// TransientError wraps a registry/persistence failure that is eligible for a
// bounded retry at the collaborator boundary.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable for the named operation.
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// ConflictError indicates a per-key lock acquisition timeout. The failure is
// scoped to one wallet or protocol key; other keys are unaffected.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update conflict on key %s", e.Key)
}

// NewConflictError creates a ConflictError for the given key.
func NewConflictError(key string) error {
	return &ConflictError{Key: key}
}

// IsValidation reports whether err is classified as a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is classified as a missing entity.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsTransient reports whether err is eligible for a bounded retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConflict reports whether err is a per-key concurrency conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
