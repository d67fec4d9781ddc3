package errs

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrUnauthorized)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)

	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("store failure")
)

// ValidationError reports a missing or malformed field on a strict path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// FieldError describes one rejected field of a request.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestError is a validation failure carrying per-field details.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Message
}

func (e *RequestError) Is(target error) bool { return target == ErrValidation }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}
