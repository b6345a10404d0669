package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "verification_failed",
				Message: "payment verification failed",
				Err:     errors.New("gateway timeout"),
			},
			expected: "payment verification failed: gateway timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot refund transaction in current state",
				Err:     nil,
			},
			expected: "cannot refund transaction in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &GatewayError{
				Provider:  "bkash",
				Code:      "timeout",
				Message:   "status query failed",
				Retryable: true,
				Err:       errors.New("context deadline exceeded"),
			},
			expected: "bkash gateway error: status query failed: context deadline exceeded",
		},
		{
			name: "without wrapped error",
			err: &GatewayError{
				Provider: "nagad",
				Code:     "rejected",
				Message:  "payment rejected",
			},
			expected: "nagad gateway error: payment rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := NewGatewayError("bkash", "timeout", "request timed out", true, errors.New("timeout"))
	terminal := NewGatewayError("bkash", "rejected", "payment rejected", false, nil)

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(NewDomainError("wrap", "wrapped", retryable)))
	assert.False(t, IsRetryable(terminal))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "amount",
		Message: "must be greater than zero",
	}

	expected := "validation failed for field amount: must be greater than zero"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("currency", "unsupported currency")

	assert.NotNil(t, err)
	assert.Equal(t, "currency", err.Field)
	assert.Equal(t, "unsupported currency", err.Message)
}

func TestErrorConstants(t *testing.T) {
	// Provider errors
	assert.NotNil(t, ErrInvalidProvider)
	assert.NotNil(t, ErrProviderUnavailable)

	// Transaction errors
	assert.NotNil(t, ErrTransactionNotFound)
	assert.NotNil(t, ErrInvalidStateTransition)
	assert.NotNil(t, ErrInvalidAmount)
	assert.NotNil(t, ErrInvalidCurrency)

	// Escrow errors
	assert.NotNil(t, ErrEscrowNotFound)
	assert.NotNil(t, ErrRefundExceedsHeld)

	// Webhook errors
	assert.NotNil(t, ErrSignatureInvalid)

	// Idempotency errors
	assert.NotNil(t, ErrDuplicateIdempotencyKey)

	// Lock errors
	assert.NotNil(t, ErrLockAcquisitionFailed)
	assert.NotNil(t, ErrLockNotHeld)

	// Validation errors
	assert.NotNil(t, ErrValidationFailed)
	assert.NotNil(t, ErrInvalidInput)
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := ErrInvalidStateTransition
	wrappedErr := NewDomainError("invalid_state", "escrow already released", baseErr)

	assert.True(t, errors.Is(wrappedErr, baseErr))
	assert.ErrorIs(t, wrappedErr, ErrInvalidStateTransition)
}
