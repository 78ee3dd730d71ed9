package providers

import (
	"context"
	"time"
)

// Adapter is the capability boundary to one upstream provider. An adapter
// translates the generic prompt into the provider's wire format and
// normalizes failures into a single error. The routing core treats all
// adapters identically: adding a provider means registering identities and
// an adapter, not touching routing logic.
type Adapter interface {
	// Name returns the provider name the adapter serves.
	Name() string

	// Invoke sends one prompt to the named model and returns the response
	// content. credential may be empty for providers that need none.
	// timeout bounds the call; the router has no way to cancel a dispatch
	// once issued beyond this bound.
	Invoke(ctx context.Context, model, prompt, credential string, timeout time.Duration) (string, error)
}

// ProviderError is a normalized failure from one adapter.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Message is the normalized error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}
