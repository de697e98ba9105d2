// Package errors defines the application error taxonomy.
//
// Every error that crosses a component boundary carries an ErrorKind. The
// saga coordinator uses the kind to decide between retry and compensation:
// Unavailable is retried with backoff, everything else fails the step
// immediately.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors across store adapters and the reasoning gateway.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindConflict           ErrorKind = "CONFLICT"
	KindUnavailable        ErrorKind = "UNAVAILABLE"
	KindCircuitOpen        ErrorKind = "CIRCUIT_OPEN"
	KindValidationFailed   ErrorKind = "VALIDATION_FAILED"
	KindCompensationFailed ErrorKind = "COMPENSATION_FAILED"
	KindInternal           ErrorKind = "INTERNAL"
)

// AppError is the custom error type for the application.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error kinds

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Kind: KindNotFound, Message: message}
}

// NewConflict creates a conflict error
func NewConflict(message string) error {
	return &AppError{Kind: KindConflict, Message: message}
}

// NewUnavailable creates a transient unavailability error
func NewUnavailable(message string, err error) error {
	return &AppError{Kind: KindUnavailable, Message: message, Err: err}
}

// NewCircuitOpen creates an error indicating the reasoning service is degraded
func NewCircuitOpen(message string) error {
	return &AppError{Kind: KindCircuitOpen, Message: message}
}

// NewValidationFailed creates a validation error caught before any write
func NewValidationFailed(message string) error {
	return &AppError{Kind: KindValidationFailed, Message: message}
}

// NewCompensationFailed wraps the root cause of a failed plan together with
// the errors collected during best-effort rollback. The root cause is always
// reachable through Unwrap so callers learn why the plan failed in the first
// place.
func NewCompensationFailed(message string, rootCause error) error {
	return &AppError{Kind: KindCompensationFailed, Message: message, Err: rootCause}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context, preserving its kind.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Kind:    appErr.Kind,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of an error, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Kind checking functions

func IsNotFound(err error) bool           { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool           { return KindOf(err) == KindConflict }
func IsUnavailable(err error) bool        { return KindOf(err) == KindUnavailable }
func IsCircuitOpen(err error) bool        { return KindOf(err) == KindCircuitOpen }
func IsValidationFailed(err error) bool   { return KindOf(err) == KindValidationFailed }
func IsCompensationFailed(err error) bool { return KindOf(err) == KindCompensationFailed }
