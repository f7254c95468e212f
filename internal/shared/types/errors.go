package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the store, controller and HTTP layer.
var (
	// ErrNotFound indicates the requested instance id does not exist.
	ErrNotFound = errors.New("instance not found")

	// ErrConflict indicates the operation is incompatible with the
	// instance's current state (e.g. delete while running).
	ErrConflict = errors.New("operation conflicts with current state")
)

// ValidationError reports a malformed request with field-level detail.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid constructs a ValidationError for the given field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProcessError wraps a supervisor failure with its diagnostic.
type ProcessError struct {
	InstanceID string
	Op         string // "start" or "stop"
	Err        error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s failed for %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// StoreError wraps a persistence I/O failure. The prior committed
// snapshot remains authoritative when one occurs.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConfigError reports a profile directory that cannot be materialized
// or rewritten.
type ConfigError struct {
	ProfilePath string
	Err         error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile config failed for %s: %v", e.ProfilePath, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
