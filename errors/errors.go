// Package errors provides the error taxonomy shared by the sync packages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	// Remote resource is not under version control. Not retryable.
	ErrCodeVersioningDisabled ErrorCode = "VERSIONING_DISABLED"
	// Local and remote histories are unrelated; the container must be recreated.
	ErrCodeEpochChanged ErrorCode = "EPOCH_CHANGED"
	// Schema drift on either side.
	ErrCodeStructureChanged ErrorCode = "STRUCTURE_CHANGED"
	// Protocol or parse violation.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	// Network or unexpected failure. Retryable by a fresh attempt.
	ErrCodeSynchronizationFailure ErrorCode = "SYNCHRONIZATION_FAILURE"

	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Operation represents the type of sync operation
type Operation string

const (
	OpCheck   Operation = "check"
	OpFetch   Operation = "fetch"
	OpDecode  Operation = "decode"
	OpDetect  Operation = "detect"
	OpResolve Operation = "resolve"
	OpCommit  Operation = "commit"
	OpStore   Operation = "store"
	OpLoad    Operation = "load"
	OpSession Operation = "session"
	OpConfig  Operation = "config"
)

// SyncError represents an error that occurred during synchronization
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "delta", "transport")
	Component string

	// Underlying error
	Err error

	// Whether a fresh attempt may succeed
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Diagnostic notes, typically "Local: x" / "Remote: y" pairs
	Notes []string

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	msg += fmt.Sprintf(": %v", e.Err)
	if len(e.Notes) > 0 {
		msg += " (" + strings.Join(e.Notes, "; ") + ")"
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// AddNote appends a formatted diagnostic note and returns the error for chaining.
func (e *SyncError) AddNote(format string, args ...any) *SyncError {
	e.Notes = append(e.Notes, fmt.Sprintf(format, args...))
	return e
}

// WithMetadata attaches a key/value pair and returns the error for chaining.
func (e *SyncError) WithMetadata(key string, value interface{}) *SyncError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewVersioningDisabledError reports a remote resource without versioning.
func NewVersioningDisabledError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeVersioningDisabled,
		Op:        op,
		Component: "delta",
		Err:       cause,
		Retryable: false,
	}
}

// NewEpochChangedError reports unrelated local and remote histories.
func NewEpochChangedError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeEpochChanged,
		Op:        op,
		Component: "delta",
		Err:       cause,
		Retryable: false,
	}
}

// NewStructureChangedError reports schema drift.
func NewStructureChangedError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStructureChanged,
		Op:        op,
		Component: "delta",
		Err:       cause,
		Retryable: false,
	}
}

// NewMalformedPayloadError reports a payload that does not match the wire schema.
func NewMalformedPayloadError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeMalformedPayload,
		Op:        op,
		Component: "codec",
		Err:       cause,
		Retryable: false,
	}
}

// NewSynchronizationError wraps a network or unexpected failure.
func NewSynchronizationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeSynchronizationFailure,
		Op:        op,
		Component: "transport",
		Err:       cause,
		Retryable: true,
	}
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// CodeOf returns the code of the outermost coded SyncError in the chain,
// or an empty code when there is none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		var syncErr *SyncError
		if !errors.As(err, &syncErr) {
			return ""
		}
		if syncErr.Code != "" {
			return syncErr.Code
		}
		err = syncErr.Err
	}
	return ""
}

// HasCode reports whether any SyncError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var syncErr *SyncError
		if !errors.As(err, &syncErr) {
			return false
		}
		if syncErr.Code == code {
			return true
		}
		err = syncErr.Err
	}
	return false
}
