// Package errors consolidates sentinel errors for the whole project.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Feed errors
	ErrFeedDisconnected = errors.New("notification feed disconnected")
	ErrFeedClosed       = errors.New("notification feed closed")
	ErrBadPickMessage   = errors.New("malformed pick message")

	// Acquisition errors
	ErrSourceClosed     = errors.New("record source closed")
	ErrBadRecord        = errors.New("malformed waveform record")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("timeout")

	// Validation errors
	ErrInvalidStream   = errors.New("invalid stream identifier")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrMissingField    = errors.New("missing required field")

	// Buffer errors
	ErrDuplicateSegment = errors.New("segment already covered")
	ErrBufferOverflow   = errors.New("retention horizon shorter than requested window")

	// Request errors
	ErrDuplicatePick     = errors.New("pick already registered")
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestCancelled  = errors.New("request cancelled")
	ErrInvalidTransition = errors.New("invalid request state transition")
	ErrWindowExpired     = errors.New("window expired before completion")

	// Archive / export errors
	ErrArchiveUnavailable = errors.New("waveform archive unavailable")
	ErrExportFailed       = errors.New("export failed")

	// Lifecycle errors
	ErrNotRunning     = errors.New("service not running")
	ErrAlreadyRunning = errors.New("service already running")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidStream) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrFeedDisconnected) ||
		errors.Is(err, ErrArchiveUnavailable)
}

// IsDataLoss returns true if err signals that waveform data requested by a
// consumer could not be delivered. These errors are always surfaced, never
// swallowed: silent data loss is the primary correctness risk here.
func IsDataLoss(err error) bool {
	return errors.Is(err, ErrWindowExpired) ||
		errors.Is(err, ErrBufferOverflow)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
