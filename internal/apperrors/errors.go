// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. Every typed error below unwraps to one of them.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPermission  = errors.New("permission denied")
	ErrConflict    = errors.New("conflict")
	ErrConsistency = errors.New("consistency violation")
	ErrStore       = errors.New("store failure")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func ValidationFields(message string, fields []FieldError) error {
	return &ValidationError{Message: message, Fields: fields}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s", e.Resource, ErrNotFound)
	}
	return fmt.Sprintf("%s %s %s", e.Resource, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPermission, e.Action)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

func Permission(action string) error {
	return &PermissionError{Action: action}
}

// ConflictError reports an operation that is invalid for the current state of a record.
type ConflictError struct {
	Message      string
	CurrentState string
}

func (e *ConflictError) Error() string {
	if e.CurrentState == "" {
		return fmt.Sprintf("%s: %s", ErrConflict, e.Message)
	}
	return fmt.Sprintf("%s: %s (current state %q)", ErrConflict, e.Message, e.CurrentState)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func Conflict(message string) error {
	return &ConflictError{Message: message}
}

func ConflictState(message, state string) error {
	return &ConflictError{Message: message, CurrentState: state}
}

type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConsistency, e.Message)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

func Consistency(format string, args ...interface{}) error {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a persistence failure. Retryable failures may succeed on a later attempt.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

func Store(op string, retryable bool, err error) error {
	return &StoreError{Op: op, Retryable: retryable, Err: err}
}

func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}

// State extracts the current state carried by a ConflictError, if any.
func State(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.CurrentState
	}
	return ""
}
