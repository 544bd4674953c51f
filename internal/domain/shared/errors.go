// Package shared contains common domain types and errors
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
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Quota errors
	ErrQuotaExceeded = errors.New("quota exceeded")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "program", "usage", "syllabus"
	Op      string // Operation that failed, e.g., "Resolve", "Publish"
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
	if t, ok := target.(*DomainError); ok {
		return e == t
	}
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

// Program domain errors
var (
	ErrProgramNotFound = NewDomainError("program", "Find", ErrNotFound, "program not found")
	ErrModuleNotFound  = NewDomainError("program", "ResolveModule", ErrNotFound, "module not found")
	ErrModuleInactive  = NewDomainError("program", "ActiveModule", ErrNotFound, "module is not active for this date")
	ErrInvalidProgram  = NewDomainError("program", "Validate", ErrInvalidInput, "invalid program")
)

// Usage domain errors
var (
	ErrMonthlyQuotaExceeded = NewDomainError("usage", "CheckAndIncrement", ErrQuotaExceeded, "monthly quota exceeded")
	ErrUsageStoreFailed     = NewDomainError("usage", "Store", ErrServiceUnavailable, "usage store unavailable")
)

// Session domain errors
var (
	ErrSessionStoreFailed = NewDomainError("session", "Store", ErrServiceUnavailable, "session store unavailable")
)

// Prompt domain errors
var (
	ErrTemplateNotFound = NewDomainError("prompt", "Find", ErrNotFound, "prompt template not found")
	ErrUnknownMode      = NewDomainError("prompt", "Assemble", ErrInvalidInput, "unknown chat mode")
)

// Syllabus (public share) errors
var (
	ErrInvalidTokenFormat = NewDomainError("syllabus", "Resolve", ErrInvalidFormat, "invalid token format")
	ErrSyllabusNotFound   = NewDomainError("syllabus", "Resolve", ErrNotFound, "not found or not published")
	ErrNotPublished       = NewDomainError("syllabus", "Regenerate", ErrInvalidState, "program is not published")
)

// External service errors
var (
	ErrCompletionUnavailable = NewDomainError("completion", "Complete", ErrServiceUnavailable, "completion backend is unavailable")
	ErrCompletionTimeout     = NewDomainError("completion", "Complete", ErrTimeout, "completion request timeout")
	ErrCompletionEmpty       = NewDomainError("completion", "Complete", ErrExternalService, "completion backend returned no content")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
