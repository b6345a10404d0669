package gateway

import (
	"context"

	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/transaction"
)

// Result is the normalized outcome of a gateway call. Status carries the
// provider's state mapped onto the transaction state machine; RawStatus
// keeps the provider's own wording for logs.
type Result struct {
	TransactionID string
	Status        transaction.Status
	Amount        int64
	Currency      string
	PaymentURL    string
	RawStatus     string
}

// CheckoutRequest asks a gateway for a hosted checkout session.
type CheckoutRequest struct {
	OrderID        string
	Amount         money.Amount
	PayerReference string
	InvoiceNumber  string
}

// Provider is the uniform capability contract every gateway adapter
// implements. Store reads are scoped to the adapter's own provider;
// transaction ids never collide across providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() transaction.Provider
	// CreateCheckout opens a checkout session and returns the hosted
	// payment URL plus the gateway's transaction id.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Result, error)
	// VerifyPayment queries the gateway for the authoritative status of
	// a transaction. It performs no writes.
	VerifyPayment(ctx context.Context, transactionID string) (*Result, error)
	// GetTransaction reads this provider's transaction from the store.
	GetTransaction(ctx context.Context, transactionID string) (*transaction.ProviderTransaction, error)
	// ListTransactions reads this provider's transactions, newest first.
	ListTransactions(ctx context.Context, limit, offset int) ([]*transaction.ProviderTransaction, error)
	// VerifyWebhookSignature checks the HMAC signature of a webhook
	// payload before any of its content is trusted.
	VerifyWebhookSignature(payload []byte, signature, timestamp string) error
}
