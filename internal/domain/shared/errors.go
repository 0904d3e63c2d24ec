// Package shared contains common domain types, errors, and events
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
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Infrastructure errors
	ErrCacheUnavailable   = errors.New("cache unavailable")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "review", "certificate"
	Op      string // Operation that failed, e.g., "SetStepCompletion", "Issue"
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

// Content domain errors
var (
	ErrCourseNotFound = NewDomainError("content", "Find", ErrNotFound, "course not found")
	ErrLessonNotFound = NewDomainError("content", "Find", ErrNotFound, "lesson not found")
	ErrStepNotFound   = NewDomainError("content", "Find", ErrNotFound, "step not found")
)

// Progress domain errors
var (
	ErrCompletionNotFound = NewDomainError("progress", "Find", ErrNotFound, "completion fact not found")
)

// Review domain errors
var (
	ErrSubmissionNotFound      = NewDomainError("review", "Find", ErrNotFound, "submission not found")
	ErrImprovementNotFound     = NewDomainError("review", "FindImprovement", ErrNotFound, "improvement item not found")
	ErrSubmissionNotPending    = NewDomainError("review", "Review", ErrInvalidTransition, "submission is not pending review")
	ErrSubmissionAlreadyExists = NewDomainError("review", "Submit", ErrInvalidTransition, "submission already exists for this lesson")
	ErrResubmitNotAllowed      = NewDomainError("review", "Resubmit", ErrInvalidTransition, "resubmission only allowed after changes were requested")
	ErrSubmissionApproved      = NewDomainError("review", "Review", ErrInvalidTransition, "submission is already approved")
	ErrLessonLocked            = NewDomainError("review", "Submit", ErrForbidden, "previous lesson is not approved yet")
)

// Certificate domain errors
var (
	ErrCertificateNotFound = NewDomainError("certificate", "Find", ErrNotFound, "certificate not found")
	// ErrDuplicateCertificate indicates the exactly-once issuance invariant was
	// violated. It must never surface to users; it is logged for investigation.
	ErrDuplicateCertificate  = NewDomainError("certificate", "Issue", ErrAlreadyExists, "certificate already issued for student and course")
	ErrCertificateRevoked    = NewDomainError("certificate", "Verify", ErrInvalidState, "certificate has been revoked")
	ErrCertificateNotRevoked = NewDomainError("certificate", "Restore", ErrInvalidState, "certificate is not revoked")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition checks if the error is an illegal state-machine move.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsCacheUnavailable checks if the error indicates an unreachable cache backend.
func IsCacheUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExternalService)
}
