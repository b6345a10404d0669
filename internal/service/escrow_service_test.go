package service

import (
	"context"
	"sync"
	"testing"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEscrowService() (*EscrowService, *testutil.MockEscrowRepository) {
	escrowRepo := testutil.NewMockEscrowRepository()
	svc := NewEscrowService(escrowRepo, testutil.NewMockTransactionManager(), nil, 0.05, zerolog.Nop())
	return svc, escrowRepo
}

func holdTestFunds(t *testing.T, svc *EscrowService, value int64) *escrow.Record {
	t.Helper()
	rec, err := svc.HoldFunds(context.Background(), "TRX-test", money.Amount{Value: value, Currency: "BDT"})
	require.NoError(t, err)
	return rec
}

func TestHoldFunds(t *testing.T) {
	svc, escrowRepo := setupEscrowService()

	rec := holdTestFunds(t, svc, 150000)

	assert.Equal(t, escrow.StatusHeld, rec.Status)
	assert.Equal(t, int64(7500), rec.Fee)

	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, escrow.ActionHold, entries[0].Action)
	assert.Equal(t, int64(150000), entries[0].Amount)
	assert.Equal(t, int64(150000), escrow.Balance(entries))
}

func TestHoldFunds_InvalidAmount(t *testing.T) {
	svc, _ := setupEscrowService()

	_, err := svc.HoldFunds(context.Background(), "TRX-test", money.Amount{Value: 0, Currency: "BDT"})
	assert.Error(t, err)
}

func TestReleaseEscrow(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	released, err := svc.Release(context.Background(), rec.ID, "care job confirmed")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)
	assert.NotNil(t, released.ReleasedAt)

	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, escrow.ActionRelease, entries[1].Action)
	assert.Equal(t, int64(0), escrow.Balance(entries))
}

func TestReleaseEscrow_Twice(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	_, err := svc.Release(context.Background(), rec.ID, "")
	require.NoError(t, err)

	_, err = svc.Release(context.Background(), rec.ID, "")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	// the losing call must not add a second RELEASE entry
	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRefundEscrow_Full(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	refunded, amount, err := svc.Refund(context.Background(), rec.ID, 0, "care job cancelled")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRefunded, refunded.Status)
	assert.Equal(t, int64(150000), amount)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Nil(t, refunded.ReleasedAt)

	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), escrow.Balance(entries))
}

func TestRefundEscrow_Partial(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	_, amount, err := svc.Refund(context.Background(), rec.ID, 50000, "partial refund")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), amount)

	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), escrow.Balance(entries))
}

func TestRefundEscrow_ExceedsHeld(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	_, _, err := svc.Refund(context.Background(), rec.ID, 150001, "")
	assert.ErrorIs(t, err, domainErrors.ErrRefundExceedsHeld)

	// rejected refund leaves the escrow held and the ledger untouched
	current, err := escrowRepo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusHeld, current.Status)
	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRefundEscrow_AfterRelease(t *testing.T) {
	svc, _ := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	_, err := svc.Release(context.Background(), rec.ID, "")
	require.NoError(t, err)

	_, _, err = svc.Refund(context.Background(), rec.ID, 0, "")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestConcurrentReleaseAndRefund(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Release(context.Background(), rec.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, _, errs[1] = svc.Refund(context.Background(), rec.ID, 0, "")
	}()
	wg.Wait()

	// exactly one of the two writers may win
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
		}
	}
	assert.Equal(t, 1, winners)

	entries, err := escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(0), escrow.Balance(entries))
}

func TestGetEscrow(t *testing.T) {
	svc, _ := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	got, entries, err := svc.GetEscrow(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Len(t, entries, 1)
}

func TestGetEscrow_NotFound(t *testing.T) {
	svc, _ := setupEscrowService()

	_, _, err := svc.GetEscrow(context.Background(), testutil.NewTestTransaction("bkash", "x", 1).ID)
	assert.ErrorIs(t, err, domainErrors.ErrEscrowNotFound)
}

func TestReconcile(t *testing.T) {
	svc, escrowRepo := setupEscrowService()
	rec := holdTestFunds(t, svc, 150000)

	require.NoError(t, svc.Reconcile(context.Background(), rec.ID))

	_, _, err := svc.Refund(context.Background(), rec.ID, 50000, "")
	require.NoError(t, err)
	require.NoError(t, svc.Reconcile(context.Background(), rec.ID))

	// a stray ledger entry breaks reconciliation
	require.NoError(t, escrowRepo.AddLedgerEntry(context.Background(),
		escrow.NewLedgerEntry(rec.ID, escrow.ActionRefund, 200000, "bogus")))
	assert.Error(t, svc.Reconcile(context.Background(), rec.ID))
}
