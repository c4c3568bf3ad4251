package errors

import (
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryMissingCredential ErrorCategory = "missing_credential"
	CategoryNetworkError      ErrorCategory = "network_error"
	CategoryMalformedResponse ErrorCategory = "malformed_response"
	CategoryInvalidRequest    ErrorCategory = "invalid_request"
	CategorySystemError       ErrorCategory = "system_error"
)

// GatewayError represents a gateway call failure with enough context to
// decide between "retry later" and "configuration defect"
type GatewayError struct {
	Code        string
	Message     string
	HTTPStatus  int
	IsRetriable bool
	Category    ErrorCategory
}

func (e *GatewayError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string, category ErrorCategory, retriable bool) *GatewayError {
	return &GatewayError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
	}
}

// WithHTTPStatus attaches the HTTP status code observed on the wire
func (e *GatewayError) WithHTTPStatus(status int) *GatewayError {
	e.HTTPStatus = status
	return e
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
