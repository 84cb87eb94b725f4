package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a bridge error.
type ErrorType string

const (
	// ErrorTypeAuthentication means no valid upstream credential could be
	// obtained. Surfaced to the caller; not retried beyond the background
	// renewal loop.
	ErrorTypeAuthentication ErrorType = "authentication_error"

	// ErrorTypeTransport means the upstream returned a non-success status
	// or the connection failed. Surfaced with status and body; not retried.
	ErrorTypeTransport ErrorType = "transport_error"

	// ErrorTypeToolArgument means the accumulated tool-call argument
	// string failed to parse at finalization.
	ErrorTypeToolArgument ErrorType = "tool_argument_error"

	// ErrorTypeRateLimited means the caller exceeded its request budget.
	ErrorTypeRateLimited ErrorType = "rate_limited"

	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeServerError    ErrorType = "server_error"
)

// BridgeError is a structured error with a type, an optional upstream
// HTTP status, and a message.
type BridgeError struct {
	Type    ErrorType `json:"type"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewAuthenticationError creates a BridgeError for a missing or
// unobtainable credential.
func NewAuthenticationError(message string) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeAuthentication,
		Message: message,
	}
}

// NewTransportError creates a BridgeError for a failed upstream request.
// The raw response body is included in the message so upstream errors
// are surfaced, not masked.
func NewTransportError(status int, body string) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeTransport,
		Status:  status,
		Message: body,
	}
}

// NewToolArgumentError creates a BridgeError for tool-call arguments
// that failed to parse after reassembly.
func NewToolArgumentError(name string, cause error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeToolArgument,
		Message: fmt.Sprintf("tool call %q: arguments are not valid JSON: %s", name, cause),
	}
}

// NewRateLimitedError creates a BridgeError for a caller over budget.
func NewRateLimitedError(message string) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeRateLimited,
		Message: message,
	}
}

// NewInvalidRequestError creates a BridgeError for a malformed caller request.
func NewInvalidRequestError(message string) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeInvalidRequest,
		Message: message,
	}
}

// NewServerError creates a BridgeError for internal failures.
func NewServerError(message string) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// AsBridgeError converts any error to a *BridgeError, wrapping unknown
// errors as server errors.
func AsBridgeError(err error) *BridgeError {
	if err == nil {
		return nil
	}
	var be *BridgeError
	if errors.As(err, &be) {
		return be
	}
	return NewServerError(err.Error())
}

// IsAuthentication reports whether err is an authentication error.
func IsAuthentication(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Type == ErrorTypeAuthentication
}
