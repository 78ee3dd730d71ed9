package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	// ErrorTypeCircuitOpen marks a provider temporarily excluded by its
	// circuit breaker. Local filtering decision, never surfaced to callers.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	// ErrorTypeRateLimited marks an identity excluded from selection
	// because its sliding window is full.
	ErrorTypeRateLimited ErrorType = "rate_limited"

	// ErrorTypeNoCredential marks a provider excluded because it has no
	// usable credential configured.
	ErrorTypeNoCredential ErrorType = "no_credential"

	// ErrorTypeNoCandidates is terminal: selection produced an empty list.
	ErrorTypeNoCandidates ErrorType = "no_candidates"

	// ErrorTypeAdapterFailure marks a failed backend call (network,
	// timeout, malformed response). Always recorded against the breaker.
	ErrorTypeAdapterFailure ErrorType = "adapter_failure"

	// ErrorTypeAllFailed is terminal: every raced candidate and the
	// private-pool escalation failed.
	ErrorTypeAllFailed ErrorType = "all_failed"

	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error with the detail added. Copying
// keeps the shared sentinel errors immutable under concurrent use.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value

	return &DomainError{
		Type:    e.Type,
		Message: e.Message,
		Err:     e.Err,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Filtering decisions (shrink the candidate list, never returned to callers)
	ErrCircuitOpen  = NewDomainError(ErrorTypeCircuitOpen, "provider circuit is open", nil)
	ErrRateLimited  = NewDomainError(ErrorTypeRateLimited, "identity rate limit window is full", nil)
	ErrNoCredential = NewDomainError(ErrorTypeNoCredential, "no credential configured for provider", nil)

	// Terminal failures (the only shapes a caller of Route observes)
	ErrNoCandidates = NewDomainError(ErrorTypeNoCandidates, "no backends available", nil)
	ErrAllFailed    = NewDomainError(ErrorTypeAllFailed, "all candidates failed", nil)

	// Execution failures
	ErrAdapterFailure  = NewDomainError(ErrorTypeAdapterFailure, "backend call failed", nil)
	ErrUnknownIdentity = NewDomainError(ErrorTypeValidation, "unknown backend model identity", nil)
	ErrUnknownAdapter  = NewDomainError(ErrorTypeInternal, "no adapter registered for provider", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyPrompt  = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// Internal errors
	ErrInternal    = NewDomainError(ErrorTypeInternal, "internal error", nil)
	ErrLedgerError = NewDomainError(ErrorTypeInternal, "usage ledger error", nil)
)

// Error type checking helper functions

// IsCircuitOpenError checks if an error is a circuit-open filtering error
func IsCircuitOpenError(err error) bool {
	return hasType(err, ErrorTypeCircuitOpen)
}

// IsRateLimitedError checks if an error is a rate-limited filtering error
func IsRateLimitedError(err error) bool {
	return hasType(err, ErrorTypeRateLimited)
}

// IsNoCredentialError checks if an error is a missing-credential filtering error
func IsNoCredentialError(err error) bool {
	return hasType(err, ErrorTypeNoCredential)
}

// IsNoCandidatesError checks if an error is a terminal empty-selection error
func IsNoCandidatesError(err error) bool {
	return hasType(err, ErrorTypeNoCandidates)
}

// IsAdapterFailureError checks if an error is a backend call failure
func IsAdapterFailureError(err error) bool {
	return hasType(err, ErrorTypeAdapterFailure)
}

// IsAllFailedError checks if an error is a terminal all-candidates failure
func IsAllFailedError(err error) bool {
	return hasType(err, ErrorTypeAllFailed)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapAdapterFailure wraps an error as a backend call failure, preserving
// the underlying error message for aggregation.
func WrapAdapterFailure(message string, err error) error {
	return NewDomainError(ErrorTypeAdapterFailure, message, err)
}
