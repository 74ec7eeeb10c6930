package errors

import (
	"errors"
	"fmt"
)

var (
	// Charge errors
	ErrChargeNotFound = errors.New("charge not found")
	ErrInvalidAmount  = errors.New("invalid amount")

	// Provider errors
	ErrAuthFailed             = errors.New("provider authentication failed")
	ErrProviderRejected       = errors.New("request rejected by provider")
	ErrProviderProtocol       = errors.New("provider returned an inconsistent charge")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
	ErrTransport              = errors.New("provider transport failure")
	ErrCredentialsUnavailable = errors.New("provider credentials not configured")

	// Webhook errors
	ErrWebhookFormat = errors.New("unrecognized webhook payload")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ProviderError records a failed call to the Pix provider together with the
// response it produced, so operators can see what the provider said.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Body != "":
		return fmt.Sprintf("%s: provider responded %d: %s", e.Operation, e.StatusCode, e.Body)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: provider responded %d", e.Operation, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	default:
		return e.Operation + ": provider call failed"
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error classified by kind
// (one of the provider sentinels above).
func NewProviderError(operation string, statusCode int, body string, kind error) *ProviderError {
	return &ProviderError{
		Operation:  operation,
		StatusCode: statusCode,
		Body:       body,
		Err:        kind,
	}
}
