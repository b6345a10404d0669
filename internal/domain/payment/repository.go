package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment record persistence
type Repository interface {
	// Create creates a new payment record
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByTransactionID retrieves the payment for a provider transaction
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	// UpdateStatus writes the payment status
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// List lists payments with filters, newest first
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	PayerID *string
	Status  *Status
	Limit   int
	Offset  int
}
