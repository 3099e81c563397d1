// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Persistence errors
	ErrOperationFailed = errors.New("operation failed")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "session", "learner", "notification"
	Op      string // Operation that failed, e.g., "Create", "Finalize"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Session domain errors
var (
	ErrSessionNotFound  = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionCompleted = NewDomainError("session", "Append", ErrInvalidState, "session already completed")
	ErrEmptyLearnerID   = NewDomainError("session", "Start", ErrEmptyValue, "learner id is required")
	ErrEmptyTurnText    = NewDomainError("session", "SendTurn", ErrEmptyValue, "turn text is required")
	ErrAudioNotFound    = NewDomainError("session", "FetchAudio", ErrNotFound, "no audio attached to session")
)

// Learner domain errors
var (
	ErrLearnerNotFound = NewDomainError("learner", "Find", ErrNotFound, "learner not found")
	ErrMentorNotFound  = NewDomainError("learner", "FindMentor", ErrNotFound, "mentor not found")
)

// Notification domain errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Deliver", ErrServiceUnavailable, "failed to deliver notification")
	ErrInvalidRecipient   = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid recipient")
)

// Provider errors
var (
	ErrProviderUnavailable = NewDomainError("provider", "Generate", ErrServiceUnavailable, "generative provider is unavailable")
	ErrProviderTimeout     = NewDomainError("provider", "Generate", ErrTimeout, "generative provider request timeout")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsServiceUnavailable checks if the error comes from an unreachable collaborator.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsConflict checks if the error is a state conflict (e.g. appending to a
// completed session).
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}
