package errors

import (
	"errors"
	"fmt"
)

var (
	// Provider errors
	ErrInvalidProvider     = errors.New("invalid payment provider")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")

	// Payment errors
	ErrPaymentNotFound = errors.New("payment not found")

	// Escrow errors
	ErrEscrowNotFound    = errors.New("escrow not found")
	ErrRefundExceedsHeld = errors.New("refund exceeds held amount")

	// Webhook errors
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GatewayError reports a failed call to an external payment gateway.
// Retryable marks transport-level failures (timeouts, 5xx) that the caller
// may safely retry; verification is idempotent so replays are harmless.
type GatewayError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s gateway error: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s gateway error: %s", e.Provider, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new gateway error
func NewGatewayError(provider, code, message string, retryable bool, err error) *GatewayError {
	return &GatewayError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether err is a gateway error worth retrying.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
