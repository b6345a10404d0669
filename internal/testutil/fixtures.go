package testutil

import (
	"time"

	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/google/uuid"
)

func NewTestTransaction(provider transaction.Provider, transactionID string, amountPoisha int64) *transaction.ProviderTransaction {
	now := time.Now()
	return &transaction.ProviderTransaction{
		ID:            uuid.New(),
		Provider:      provider,
		TransactionID: transactionID,
		OrderID:       "order-" + transactionID,
		Amount:        money.Amount{Value: amountPoisha, Currency: money.DefaultCurrency},
		Status:        transaction.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NewCompletedTransaction(provider transaction.Provider, transactionID string, amountPoisha int64) *transaction.ProviderTransaction {
	t := NewTestTransaction(provider, transactionID, amountPoisha)
	t.Status = transaction.StatusCompleted
	return t
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
