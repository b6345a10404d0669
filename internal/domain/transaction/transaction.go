package transaction

import (
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/google/uuid"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderBkash Provider = "bkash"
	ProviderNagad Provider = "nagad"
)

// ParseProvider validates a provider name from the outside world.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderBkash:
		return ProviderBkash, nil
	case ProviderNagad:
		return ProviderNagad, nil
	default:
		return "", errors.NewDomainError(
			"invalid_provider",
			"unsupported payment method: "+s,
			errors.ErrInvalidProvider,
		)
	}
}

// Status represents the transaction status in the state machine.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRefunded  Status = "REFUNDED"
	StatusFailed    Status = "FAILED"
)

// ProviderTransaction is one payment attempt against a gateway. The
// TransactionID is the gateway's identifier and is unique per provider.
type ProviderTransaction struct {
	ID            uuid.UUID
	Provider      Provider
	TransactionID string
	OrderID       string
	Amount        money.Amount
	Status        Status
	CustomerPhone *string
	EscrowID      *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LogEntry is one record of the append-only transaction log. A creation
// entry has an empty PreviousStatus.
type LogEntry struct {
	ID             uuid.UUID
	TransactionRef uuid.UUID
	PreviousStatus Status
	NewStatus      Status
	Reason         string
	CreatedAt      time.Time
}

// New creates a pending transaction for a gateway checkout session.
func New(provider Provider, transactionID, orderID string, amount money.Amount) (*ProviderTransaction, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if transactionID == "" {
		return nil, errors.NewValidationError("transaction_id", "cannot be empty")
	}

	now := time.Now()
	return &ProviderTransaction{
		ID:            uuid.New(),
		Provider:      provider,
		TransactionID: transactionID,
		OrderID:       orderID,
		Amount:        amount,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTransitionTo checks if the transaction can move to the given status.
func (t *ProviderTransaction) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusCompleted,
			StatusFailed,
		},
		StatusCompleted: {
			StatusRefunded,
		},
		StatusRefunded: {}, // Terminal state
		StatusFailed:   {}, // Terminal state
	}

	allowed, exists := transitions[t.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the transaction to a new status.
func (t *ProviderTransaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted transitions the transaction to completed status.
func (t *ProviderTransaction) MarkCompleted() error {
	return t.TransitionTo(StatusCompleted)
}

// MarkFailed transitions the transaction to failed status.
func (t *ProviderTransaction) MarkFailed() error {
	return t.TransitionTo(StatusFailed)
}

// MarkRefunded transitions the transaction to refunded status.
func (t *ProviderTransaction) MarkRefunded() error {
	return t.TransitionTo(StatusRefunded)
}

// IsTerminal checks if the transaction is in a terminal state.
func (t *ProviderTransaction) IsTerminal() bool {
	return t.Status == StatusRefunded || t.Status == StatusFailed
}

// NewLogEntry builds an append-only log record for a status change.
func NewLogEntry(transactionRef uuid.UUID, previous, next Status, reason string) *LogEntry {
	return &LogEntry{
		ID:             uuid.New(),
		TransactionRef: transactionRef,
		PreviousStatus: previous,
		NewStatus:      next,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
}
