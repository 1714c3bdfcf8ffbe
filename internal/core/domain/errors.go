// Package domain defines the core domain models for the simulation.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a simulation domain error with a structured error code.
//
// @req RQ-0104
// @design DS-0104
type DomainError struct {
	Code    string // Error code (e.g., "OM-CKPT-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
//
// @design DS-0104
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Checkpoint Errors (CKPT)
// ============================================================================

var (
	// ErrNotCheckpoint indicates the file does not declare itself a checkpoint.
	ErrNotCheckpoint = NewDomainError("OM-CKPT-4000", "file is not a checkpoint artifact")

	// ErrSchemaVersion indicates the checkpoint schema version does not match
	// the version this build reads. No forward or partial compatibility is
	// attempted.
	ErrSchemaVersion = NewDomainError("OM-CKPT-4001", "checkpoint schema version mismatch")

	// ErrEnergyModeMismatch indicates the recorded energy mode differs from the
	// restoring configuration. Energy treatment is immutable per run.
	ErrEnergyModeMismatch = NewDomainError("OM-CKPT-4002", "energy mode mismatch")

	// ErrBatchCursor indicates the restart cursor exceeds the reconciled batch count.
	ErrBatchCursor = NewDomainError("OM-CKPT-4003", "restart cursor exceeds configured batch count")

	// ErrSourceMissing indicates no source population is available for restart.
	ErrSourceMissing = NewDomainError("OM-CKPT-4004", "checkpoint has no embedded source population and no separate source file was given")

	// ErrSourceFingerprint indicates the restored source bank does not match the
	// fingerprint recorded at write time.
	ErrSourceFingerprint = NewDomainError("OM-CKPT-4005", "source bank fingerprint mismatch")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrSettingsValidation indicates the run settings failed validation.
	ErrSettingsValidation = NewDomainError("OM-CONF-4001", "settings validation failed")
)
