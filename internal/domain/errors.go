package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Credential & configuration errors (CREDENTIAL_*, CURRENCY_*)
	ErrorCodeCredentialMissing   ErrorCode = "CREDENTIAL_MISSING"
	ErrorCodeCredentialInvalid   ErrorCode = "CREDENTIAL_INVALID"
	ErrorCodeCurrencyUnsupported ErrorCode = "CURRENCY_UNSUPPORTED"

	// Gateway errors (GATEWAY_*)
	ErrorCodeGatewayNetwork   ErrorCode = "GATEWAY_NETWORK_ERROR"
	ErrorCodeGatewayMalformed ErrorCode = "GATEWAY_MALFORMED_RESPONSE"

	// Webhook registration errors (MERCHANT_CODE_*)
	ErrorCodeMerchantCodeUnauthorized ErrorCode = "MERCHANT_CODE_UNAUTHORIZED"

	// Transaction errors (TXN_*)
	ErrorCodeTxnNotFound       ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeTxnInvalidState   ErrorCode = "TXN_INVALID_STATE"
	ErrorCodeTxnReferenceTaken ErrorCode = "TXN_REFERENCE_TAKEN"
	ErrorCodeTxnNoGatewayRef   ErrorCode = "TXN_NO_GATEWAY_REFERENCE"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeTxnNotFound
}

// IsConfigurationError reports whether an error stems from deployment
// configuration rather than transient conditions. Configuration errors are
// raised synchronously to the caller; transient ones degrade to the error
// status sentinel instead.
func IsConfigurationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeCredentialMissing ||
		code == ErrorCodeCredentialInvalid ||
		code == ErrorCodeCurrencyUnsupported
}

// Structured error instances
var (
	ErrCredentialMissing = NewDomainError(ErrorCodeCredentialMissing, "no secret key configured")

	ErrTxnNotFound     = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrTxnInvalidState = NewDomainError(ErrorCodeTxnInvalidState, "transaction is in invalid state for this operation")
	ErrTxnNoGatewayRef = NewDomainError(ErrorCodeTxnNoGatewayRef, "no gateway payment reference found for this transaction")

	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
