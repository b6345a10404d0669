package escrow

import (
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/google/uuid"
)

// Status represents the escrow status. HELD is the only non-terminal state.
type Status string

const (
	StatusHeld     Status = "HELD"
	StatusReleased Status = "RELEASED"
	StatusRefunded Status = "REFUNDED"
)

// Action identifies a fund movement in the escrow ledger.
type Action string

const (
	ActionHold    Action = "HOLD"
	ActionRelease Action = "RELEASE"
	ActionRefund  Action = "REFUND"
)

// Record represents funds held in escrow for one transaction.
// Fee is the informational platform cut of the held amount; ledger
// reconciliation runs over gross amounts.
type Record struct {
	ID         uuid.UUID
	Reference  string
	Amount     money.Amount
	Fee        int64
	Status     Status
	ReleasedAt *time.Time
	RefundedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LedgerEntry is one append-only fund movement. SignedAmount is positive
// for HOLD and negative for RELEASE/REFUND.
type LedgerEntry struct {
	ID        uuid.UUID
	EscrowID  uuid.UUID
	Action    Action
	Amount    int64
	Note      string
	CreatedAt time.Time
}

// SignedAmount returns the entry's contribution to the escrow balance.
func (e *LedgerEntry) SignedAmount() int64 {
	if e.Action == ActionHold {
		return e.Amount
	}
	return -e.Amount
}

// NewRecord creates a held escrow. feeRate is a fraction of the held
// amount, e.g. 0.05.
func NewRecord(reference string, amount money.Amount, feeRate float64) (*Record, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if feeRate < 0 || feeRate >= 1 {
		return nil, errors.NewValidationError("fee_rate", "must be in [0, 1)")
	}

	now := time.Now()
	return &Record{
		ID:        uuid.New(),
		Reference: reference,
		Amount:    amount,
		Fee:       int64(float64(amount.Value) * feeRate),
		Status:    StatusHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Release moves the escrow out of HELD toward the provider.
func (r *Record) Release() error {
	if r.Status != StatusHeld {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot release escrow in status "+string(r.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	now := time.Now()
	r.Status = StatusReleased
	r.ReleasedAt = &now
	r.UpdatedAt = now
	return nil
}

// Refund moves the escrow out of HELD back toward the payer. amount must
// not exceed the held amount; pass r.Amount.Value for a full refund.
func (r *Record) Refund(amount int64) error {
	if r.Status != StatusHeld {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot refund escrow in status "+string(r.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount > r.Amount.Value {
		return errors.NewDomainError(
			"refund_exceeds_held",
			"refund amount exceeds held amount",
			errors.ErrRefundExceedsHeld,
		)
	}
	now := time.Now()
	r.Status = StatusRefunded
	r.RefundedAt = &now
	r.UpdatedAt = now
	return nil
}

// IsTerminal checks if the escrow reached a terminal state.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusReleased || r.Status == StatusRefunded
}

// NewLedgerEntry builds an append-only fund-movement record.
func NewLedgerEntry(escrowID uuid.UUID, action Action, amount int64, note string) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New(),
		EscrowID:  escrowID,
		Action:    action,
		Amount:    amount,
		Note:      note,
		CreatedAt: time.Now(),
	}
}

// Balance sums the signed ledger amounts.
func Balance(entries []*LedgerEntry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.SignedAmount()
	}
	return sum
}

// Reconcile checks a record against its ledger: a HELD escrow balances to
// the held amount, a terminal one balances to the residual after release
// or refund. Partial refunds leave the remainder on the balance.
func Reconcile(r *Record, entries []*LedgerEntry) error {
	balance := Balance(entries)

	switch r.Status {
	case StatusHeld:
		if balance != r.Amount.Value {
			return errors.NewDomainError(
				"ledger_mismatch",
				"held escrow balance does not match held amount",
				errors.ErrValidationFailed,
			)
		}
	case StatusReleased, StatusRefunded:
		if balance < 0 || balance > r.Amount.Value {
			return errors.NewDomainError(
				"ledger_mismatch",
				"terminal escrow balance out of range",
				errors.ErrValidationFailed,
			)
		}
	}
	return nil
}
