package controller

import (
	"time"

	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/payment"
	"github.com/carenet/payments/internal/domain/transaction"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 taka for money, string for
// IDs, validation tags). Controllers convert these to service layer DTOs
// before calling business logic.

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	PayerID  string  `json:"payer_id" validate:"required"`
	Method   string  `json:"method" validate:"required,oneof=bkash nagad"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`
	OrderID  string  `json:"order_id" validate:"required"`
}

// RefundPaymentRequest holds the input for refunding a payment. A zero
// amount refunds the full transaction amount.
type RefundPaymentRequest struct {
	TransactionID string  `json:"transaction_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Reason        string  `json:"reason"`
}

// ReleaseEscrowRequest holds the input for releasing held funds.
type ReleaseEscrowRequest struct {
	Reason string `json:"reason"`
}

// RefundEscrowRequest holds the input for refunding held funds.
type RefundEscrowRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
	Reason string  `json:"reason"`
}

// --- Response DTOs ---

// CreatePaymentResponse represents a created checkout session.
type CreatePaymentResponse struct {
	PaymentURL    string  `json:"payment_url"`
	TransactionID string  `json:"transaction_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// TransactionResponse represents a provider transaction in API responses.
type TransactionResponse struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	EscrowID      *string   `json:"escrow_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VerifyPaymentResponse represents the outcome of a verification.
type VerifyPaymentResponse struct {
	Verified         bool                 `json:"verified"`
	AlreadyCompleted bool                 `json:"already_completed"`
	Transaction      *TransactionResponse `json:"transaction"`
}

// RefundPaymentResponse represents a processed refund.
type RefundPaymentResponse struct {
	Transaction    *TransactionResponse `json:"transaction"`
	RefundedAmount float64              `json:"refunded_amount"`
}

// LogEntryResponse represents one transaction log record.
type LogEntryResponse struct {
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// EscrowResponse represents an escrow record in API responses.
type EscrowResponse struct {
	ID         string                 `json:"id"`
	Reference  string                 `json:"reference"`
	Amount     float64                `json:"amount"`
	Currency   string                 `json:"currency"`
	Fee        float64                `json:"fee"`
	Status     string                 `json:"status"`
	ReleasedAt *time.Time             `json:"released_at,omitempty"`
	RefundedAt *time.Time             `json:"refunded_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Ledger     []*LedgerEntryResponse `json:"ledger,omitempty"`
}

// LedgerEntryResponse represents one escrow fund movement.
type LedgerEntryResponse struct {
	Action    string    `json:"action"`
	Amount    float64   `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentRecordResponse represents a payment record in API responses.
type PaymentRecordResponse struct {
	ID            string    `json:"id"`
	PayerID       string    `json:"payer_id"`
	Method        string    `json:"method"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transaction_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTransaction converts a domain transaction to API response.
func FromTransaction(t *transaction.ProviderTransaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:            t.ID.String(),
		Provider:      string(t.Provider),
		TransactionID: t.TransactionID,
		OrderID:       t.OrderID,
		Amount:        money.ToMajor(t.Amount.Value),
		Currency:      t.Amount.Currency,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.EscrowID != nil {
		eid := t.EscrowID.String()
		resp.EscrowID = &eid
	}
	return resp
}

// FromLogEntry converts a domain log entry to API response.
func FromLogEntry(e *transaction.LogEntry) *LogEntryResponse {
	return &LogEntryResponse{
		PreviousStatus: string(e.PreviousStatus),
		NewStatus:      string(e.NewStatus),
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt,
	}
}

// FromEscrow converts a domain escrow record to API response.
func FromEscrow(rec *escrow.Record, entries []*escrow.LedgerEntry) *EscrowResponse {
	resp := &EscrowResponse{
		ID:         rec.ID.String(),
		Reference:  rec.Reference,
		Amount:     money.ToMajor(rec.Amount.Value),
		Currency:   rec.Amount.Currency,
		Fee:        money.ToMajor(rec.Fee),
		Status:     string(rec.Status),
		ReleasedAt: rec.ReleasedAt,
		RefundedAt: rec.RefundedAt,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	for _, e := range entries {
		resp.Ledger = append(resp.Ledger, &LedgerEntryResponse{
			Action:    string(e.Action),
			Amount:    money.ToMajor(e.Amount),
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

// FromPaymentRecord converts a domain payment to API response.
func FromPaymentRecord(p *payment.Payment) *PaymentRecordResponse {
	return &PaymentRecordResponse{
		ID:            p.ID.String(),
		PayerID:       p.PayerID,
		Method:        string(p.Method),
		Amount:        money.ToMajor(p.Amount.Value),
		Currency:      p.Amount.Currency,
		TransactionID: p.TransactionID,
		InvoiceNumber: p.InvoiceNumber,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
