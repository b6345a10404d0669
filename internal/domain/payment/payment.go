package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/google/uuid"
)

// Status represents the payment record status
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

// Payment is the internal reporting record for a payer's payment intent.
// It mirrors the lifecycle of the underlying provider transaction and
// carries the invoice number shown to the payer.
type Payment struct {
	ID            uuid.UUID
	PayerID       string
	Method        transaction.Provider
	Amount        money.Amount
	TransactionID string
	InvoiceNumber string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPayment creates a pending payment record with a fresh invoice number.
func NewPayment(payerID string, method transaction.Provider, amount money.Amount, transactionID string) (*Payment, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if payerID == "" {
		return nil, errors.NewValidationError("payer_id", "cannot be empty")
	}

	now := time.Now()
	return &Payment{
		ID:            uuid.New(),
		PayerID:       payerID,
		Method:        method,
		Amount:        amount,
		TransactionID: transactionID,
		InvoiceNumber: newInvoiceNumber(now),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus Status) bool {
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

	allowed, exists := transitions[p.Status]
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

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return nil
}

func newInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), suffix)
}
