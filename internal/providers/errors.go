package providers

import (
	"errors"
	"fmt"
)

// ErrProviderNotConfigured is returned by the registry when a driver name
// has no matching registration.
var ErrProviderNotConfigured = errors.New("provider not configured")

// ErrModeNotSupported is returned when a provider is asked to operate in
// a mode outside SupportedModes.
var ErrModeNotSupported = errors.New("mode not supported by provider")

// RequestFailedError wraps a non-2xx HTTP response from a provider.
type RequestFailedError struct {
	Provider string
	Status   int
	Body     string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("provider %s: request failed: status %d: %s", e.Provider, e.Status, e.Body)
}

// NewRequestFailedError constructs a RequestFailedError.
func NewRequestFailedError(provider string, status int, body string) error {
	return &RequestFailedError{Provider: provider, Status: status, Body: body}
}
