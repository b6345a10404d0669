package payment

import (
	"strings"
	"testing"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	amount := money.Amount{Value: 150000, Currency: "BDT"}
	p, err := NewPayment("payer-1", transaction.ProviderBkash, amount, "TRX9A7B2C")
	require.NoError(t, err)

	assert.Equal(t, "payer-1", p.PayerID)
	assert.Equal(t, transaction.ProviderBkash, p.Method)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "TRX9A7B2C", p.TransactionID)
	assert.True(t, strings.HasPrefix(p.InvoiceNumber, "INV-"))
	assert.Len(t, strings.Split(p.InvoiceNumber, "-"), 3)
}

func TestNewPayment_Invalid(t *testing.T) {
	amount := money.Amount{Value: 150000, Currency: "BDT"}

	_, err := NewPayment("", transaction.ProviderBkash, amount, "TRX1")
	assert.Error(t, err)

	_, err = NewPayment("payer-1", transaction.ProviderBkash, money.Amount{Value: -1, Currency: "BDT"}, "TRX1")
	assert.Error(t, err)
}

func TestInvoiceNumbersAreUnique(t *testing.T) {
	amount := money.Amount{Value: 100, Currency: "BDT"}
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := NewPayment("payer-1", transaction.ProviderNagad, amount, "TRX1")
		require.NoError(t, err)
		assert.False(t, seen[p.InvoiceNumber])
		seen[p.InvoiceNumber] = true
	}
}

func TestTransitionTo(t *testing.T) {
	amount := money.Amount{Value: 100, Currency: "BDT"}
	p, err := NewPayment("payer-1", transaction.ProviderBkash, amount, "TRX1")
	require.NoError(t, err)

	require.NoError(t, p.TransitionTo(StatusCompleted))
	require.NoError(t, p.TransitionTo(StatusRefunded))
	assert.ErrorIs(t, p.TransitionTo(StatusCompleted), errors.ErrInvalidStateTransition)
}

func TestTransitionTo_FailedIsTerminal(t *testing.T) {
	amount := money.Amount{Value: 100, Currency: "BDT"}
	p, err := NewPayment("payer-1", transaction.ProviderBkash, amount, "TRX1")
	require.NoError(t, err)

	require.NoError(t, p.TransitionTo(StatusFailed))
	assert.ErrorIs(t, p.TransitionTo(StatusCompleted), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, p.TransitionTo(StatusRefunded), errors.ErrInvalidStateTransition)
}
