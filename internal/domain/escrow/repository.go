package escrow

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for escrow persistence
type Repository interface {
	// Create creates a new escrow record
	Create(ctx context.Context, record *Record) error

	// GetByID retrieves an escrow record by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// GetByReference retrieves an escrow record by external reference
	GetByReference(ctx context.Context, reference string) (*Record, error)

	// List lists escrow records, newest first
	List(ctx context.Context, filter ListFilter) ([]*Record, error)

	// TransitionFromHeld writes the record's new status and timestamps
	// with a conditional update guarded on the stored status still being
	// HELD. ErrInvalidStateTransition when another writer won the race.
	TransitionFromHeld(ctx context.Context, record *Record) error

	// AddLedgerEntry appends to the escrow ledger
	AddLedgerEntry(ctx context.Context, entry *LedgerEntry) error

	// GetLedgerEntries retrieves the ledger for an escrow, oldest first
	GetLedgerEntries(ctx context.Context, escrowID uuid.UUID) ([]*LedgerEntry, error)
}

// ListFilter defines filters for listing escrow records
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}
