package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create creates a new provider transaction
	Create(ctx context.Context, tx *ProviderTransaction) error

	// GetByID retrieves a transaction by internal ID
	GetByID(ctx context.Context, id uuid.UUID) (*ProviderTransaction, error)

	// GetByTransactionID retrieves a transaction by provider and gateway ID
	GetByTransactionID(ctx context.Context, provider Provider, transactionID string) (*ProviderTransaction, error)

	// List lists transactions with filters, newest first
	List(ctx context.Context, filter ListFilter) ([]*ProviderTransaction, error)

	// TransitionStatus performs a conditional status update. It returns
	// ErrInvalidStateTransition when the stored status no longer matches
	// from, so concurrent writers cannot double-apply a transition.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) error

	// LinkEscrow attaches the escrow created for a completed transaction
	LinkEscrow(ctx context.Context, id, escrowID uuid.UUID) error

	// AddLogEntry appends to the transaction log
	AddLogEntry(ctx context.Context, entry *LogEntry) error

	// GetLogEntries retrieves the log for a transaction, oldest first
	GetLogEntries(ctx context.Context, transactionRef uuid.UUID) ([]*LogEntry, error)
}

// ListFilter defines filters for listing transactions
type ListFilter struct {
	Provider *Provider
	Status   *Status
	Limit    int
	Offset   int
}
