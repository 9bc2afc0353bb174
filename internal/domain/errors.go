package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict on insert.
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation        = errors.New("validation failed")
	ErrInvalidCode       = fmt.Errorf("invalid or inactive code: %w", ErrNotFound)
	ErrReferenceNotFound = fmt.Errorf("payment reference: %w", ErrNotFound)
	ErrAlreadyApplied    = errors.New("code already applied")

	ErrExpired       = errors.New("download link expired")
	ErrLimitExceeded = errors.New("download limit exceeded")
	ErrFileMissing   = fmt.Errorf("file: %w", ErrNotFound)

	ErrExternalService = errors.New("external service unavailable")
	ErrConsistency     = errors.New("data consistency violation")
)

// ValidationError reports bad or missing input. It matches ErrValidation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a field-level ValidationError.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// ExternalServiceError wraps a failure talking to the gateway or mail provider.
// The outcome of the remote operation is unknown; callers may retry.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() []error { return []error{ErrExternalService, e.Err} }

// External wraps err as an ExternalServiceError for the named service.
func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// ConsistencyError signals persisted state that contradicts the gateway or
// itself. There is no automatic recovery.
type ConsistencyError struct {
	Msg string
}

func (e *ConsistencyError) Error() string { return "consistency: " + e.Msg }

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// Inconsistent builds a ConsistencyError from a format string.
func Inconsistent(format string, args ...any) error {
	return &ConsistencyError{Msg: fmt.Sprintf(format, args...)}
}
