package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound              = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists         = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict       = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation            = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation      = new(ErrCodeInvalidOperation, "invalid operation")
	ErrCascadeInconsistency  = new(ErrCodeCascadeInconsistency, "cascade inconsistency")
	ErrBlockedAction         = new(ErrCodeBlockedAction, "action blocked")
	ErrDatabase              = new(ErrCodeDatabase, "database error")
	ErrSystem                = new(ErrCodeSystemError, "system error")
	ErrTransitionUnscheduled = new(ErrCodeTransitionUnscheduled, "transition could not be scheduled")

	// ordered from most to least specific so Code picks the first match
	knownErrors = []*InternalError{
		ErrVersionConflict,
		ErrCascadeInconsistency,
		ErrBlockedAction,
		ErrNotFound,
		ErrAlreadyExists,
		ErrValidation,
		ErrInvalidOperation,
		ErrTransitionUnscheduled,
		ErrDatabase,
		ErrSystem,
	}
)

const (
	ErrCodeSystemError           = "system_error"
	ErrCodeNotFound              = "not_found"
	ErrCodeAlreadyExists         = "already_exists"
	ErrCodeVersionConflict       = "version_conflict"
	ErrCodeValidation            = "validation_error"
	ErrCodeInvalidOperation      = "invalid_operation"
	ErrCodeCascadeInconsistency  = "cascade_inconsistency"
	ErrCodeBlockedAction         = "blocked_action"
	ErrCodeDatabase              = "database_error"
	ErrCodeTransitionUnscheduled = "transition_unscheduled"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// NewSentinel creates a package level sentinel that can be used with Mark
// and WithMark. Sentinels created here are matched by code.
func NewSentinel(code string, message string) *InternalError {
	return new(code, message)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsCascadeInconsistency checks if an error reports an add-on that is not
// eligible under its base plan
func IsCascadeInconsistency(err error) bool {
	return errors.Is(err, ErrCascadeInconsistency)
}

// IsBlockedAction checks if an error was raised by a blocking check
func IsBlockedAction(err error) bool {
	return errors.Is(err, ErrBlockedAction)
}

// IsDatabase checks if an error is a database error
func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// Code returns the machine readable code of the first known class err is
// marked with, or ErrCodeSystemError.
func Code(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Code
		}
	}
	return ErrCodeSystemError
}
