package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/payment"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/carenet/payments/internal/gateway"
	"github.com/carenet/payments/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps a gateway adapter and counts its outbound calls,
// so tests can assert that idempotent paths skip the gateway entirely.
type countingProvider struct {
	gateway.Provider
	checkoutCalls atomic.Int32
	verifyCalls   atomic.Int32
}

func (p *countingProvider) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Result, error) {
	p.checkoutCalls.Add(1)
	return p.Provider.CreateCheckout(ctx, req)
}

func (p *countingProvider) VerifyPayment(ctx context.Context, transactionID string) (*gateway.Result, error) {
	p.verifyCalls.Add(1)
	return p.Provider.VerifyPayment(ctx, transactionID)
}

type paymentServiceDeps struct {
	txRepo      *testutil.MockTransactionRepository
	escrowRepo  *testutil.MockEscrowRepository
	paymentRepo *testutil.MockPaymentRepository
	bkash       *countingProvider
	nagad       *countingProvider
}

func setupPaymentService(opts ...gateway.MockProviderOption) (*PaymentService, *paymentServiceDeps) {
	txRepo := testutil.NewMockTransactionRepository()
	escrowRepo := testutil.NewMockEscrowRepository()
	paymentRepo := testutil.NewMockPaymentRepository()
	txManager := testutil.NewMockTransactionManager()

	bkash := &countingProvider{Provider: gateway.NewMockProvider(transaction.ProviderBkash, txRepo, opts...)}
	nagad := &countingProvider{Provider: gateway.NewMockProvider(transaction.ProviderNagad, txRepo, opts...)}
	registry := gateway.NewRegistry(bkash, nagad)

	escrowSvc := NewEscrowService(escrowRepo, txManager, nil, 0.05, zerolog.Nop())
	svc := NewPaymentService(registry, escrowSvc, txRepo, paymentRepo, txManager, zerolog.Nop())

	return svc, &paymentServiceDeps{
		txRepo:      txRepo,
		escrowRepo:  escrowRepo,
		paymentRepo: paymentRepo,
		bkash:       bkash,
		nagad:       nagad,
	}
}

func createTestPayment(t *testing.T, svc *PaymentService, method string) *CreatePaymentResponse {
	t.Helper()
	resp, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		PayerID:  "payer-1",
		Method:   method,
		Amount:   150000,
		Currency: "BDT",
		OrderID:  "order-1",
	})
	require.NoError(t, err)
	return resp
}

func TestCreatePayment(t *testing.T) {
	svc, deps := setupPaymentService()

	resp := createTestPayment(t, svc, "bkash")

	assert.NotEmpty(t, resp.PaymentURL)
	assert.NotEmpty(t, resp.TransactionID)
	assert.Contains(t, resp.InvoiceNumber, "INV-")
	assert.Equal(t, int64(150000), resp.Amount.Value)

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Equal(t, "order-1", stored.OrderID)

	entries, err := deps.txRepo.GetLogEntries(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, transaction.Status(""), entries[0].PreviousStatus)
	assert.Equal(t, transaction.StatusPending, entries[0].NewStatus)

	pay, err := deps.paymentRepo.GetByTransactionID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, pay.Status)
}

func TestCreatePayment_InvalidMethod(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		PayerID: "payer-1",
		Method:  "rocket",
		Amount:  150000,
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidProvider)
}

func TestCreatePayment_InvalidAmount(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		PayerID: "payer-1",
		Method:  "bkash",
		Amount:  -100,
	})
	var vErr *domainErrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
}

func TestCreatePayment_CircuitBreakerOpens(t *testing.T) {
	svc, _ := setupPaymentService(gateway.WithFailureRate(1.0))

	var lastErr error
	for i := 0; i < 15; i++ {
		_, lastErr = svc.CreatePayment(context.Background(), CreatePaymentRequest{
			PayerID: "payer-1",
			Method:  "bkash",
			Amount:  150000,
			OrderID: "order-" + strconv.Itoa(i),
		})
		require.Error(t, lastErr)
	}

	var gwErr *domainErrors.GatewayError
	require.ErrorAs(t, lastErr, &gwErr)
	assert.Equal(t, "circuit_open", gwErr.Code)
	assert.True(t, domainErrors.IsRetryable(lastErr))
}

func TestVerifyPayment(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	verify, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	assert.True(t, verify.Verified)
	assert.False(t, verify.AlreadyCompleted)
	assert.Equal(t, transaction.StatusCompleted, verify.Transaction.Status)

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)
	require.NotNil(t, stored.EscrowID)

	// verification holds the funds with exactly one HOLD entry
	rec, err := deps.escrowRepo.GetByID(context.Background(), *stored.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusHeld, rec.Status)
	assert.Equal(t, resp.TransactionID, rec.Reference)
	entries, err := deps.escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, escrow.ActionHold, entries[0].Action)

	logs, err := deps.txRepo.GetLogEntries(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, transaction.StatusCompleted, logs[1].NewStatus)

	pay, err := deps.paymentRepo.GetByTransactionID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	gatewayCalls := deps.bkash.verifyCalls.Load()

	// replays short-circuit on the stored status: no gateway call,
	// no second escrow, no extra ledger entries
	verify, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	assert.True(t, verify.Verified)
	assert.True(t, verify.AlreadyCompleted)
	assert.Equal(t, gatewayCalls, deps.bkash.verifyCalls.Load())

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	entries, err := deps.escrowRepo.GetLedgerEntries(context.Background(), *stored.EscrowID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestVerifyPayment_GatewayReportsFailed(t *testing.T) {
	svc, deps := setupPaymentService(gateway.WithVerifyStatus(transaction.StatusFailed))
	resp := createTestPayment(t, svc, "bkash")

	verify, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	assert.False(t, verify.Verified)
	assert.Equal(t, transaction.StatusFailed, verify.Transaction.Status)

	logs, err := deps.txRepo.GetLogEntries(context.Background(), verify.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, transaction.StatusFailed, logs[1].NewStatus)

	pay, err := deps.paymentRepo.GetByTransactionID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, pay.Status)
}

func TestVerifyPayment_StillPending(t *testing.T) {
	svc, deps := setupPaymentService(gateway.WithVerifyStatus(transaction.StatusPending))
	resp := createTestPayment(t, svc, "bkash")

	verify, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	assert.False(t, verify.Verified)
	assert.Equal(t, transaction.StatusPending, verify.Transaction.Status)

	// nothing written while the gateway is still pending
	logs, err := deps.txRepo.GetLogEntries(context.Background(), verify.Transaction.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestVerifyPayment_NotFound(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.VerifyPayment(context.Background(), "bkash", "bkash_txn_missing")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestVerifyPayment_LosesConditionalUpdate(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	// another verifier completes the transaction between our read and write
	var raced bool
	deps.txRepo.TransitionStatusFunc = func(ctx context.Context, id uuid.UUID, from, to transaction.Status) error {
		deps.txRepo.TransitionStatusFunc = nil
		raced = true
		require.NoError(t, deps.txRepo.TransitionStatus(ctx, id, from, to))
		return domainErrors.NewDomainError("invalid_transition",
			"transaction is no longer "+string(from), domainErrors.ErrInvalidStateTransition)
	}

	verify, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)
	assert.True(t, raced)
	assert.True(t, verify.Verified)
	assert.True(t, verify.AlreadyCompleted)
	assert.Equal(t, transaction.StatusCompleted, verify.Transaction.Status)
}

func TestRefundPayment(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	refund, err := svc.RefundPayment(context.Background(), RefundPaymentRequest{
		TransactionID: resp.TransactionID,
		Reason:        "care job cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusRefunded, refund.Transaction.Status)
	assert.Equal(t, int64(150000), refund.RefundedAmount)

	// the escrow refunded through its ledger and balances to zero
	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored.EscrowID)
	rec, err := deps.escrowRepo.GetByID(context.Background(), *stored.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRefunded, rec.Status)
	entries, err := deps.escrowRepo.GetLedgerEntries(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), escrow.Balance(entries))

	pay, err := deps.paymentRepo.GetByTransactionID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, pay.Status)
}

func TestRefundPayment_Partial(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	refund, err := svc.RefundPayment(context.Background(), RefundPaymentRequest{
		TransactionID: resp.TransactionID,
		Amount:        50000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), refund.RefundedAmount)

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	entries, err := deps.escrowRepo.GetLedgerEntries(context.Background(), *stored.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), escrow.Balance(entries))
}

func TestRefundPayment_BeforeCompletion(t *testing.T) {
	svc, _ := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	_, err := svc.RefundPayment(context.Background(), RefundPaymentRequest{
		TransactionID: resp.TransactionID,
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestRefundPayment_Twice(t *testing.T) {
	svc, _ := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	_, err = svc.RefundPayment(context.Background(), RefundPaymentRequest{TransactionID: resp.TransactionID})
	require.NoError(t, err)

	_, err = svc.RefundPayment(context.Background(), RefundPaymentRequest{TransactionID: resp.TransactionID})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestRefundPayment_ExceedsAmount(t *testing.T) {
	svc, _ := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	_, err = svc.RefundPayment(context.Background(), RefundPaymentRequest{
		TransactionID: resp.TransactionID,
		Amount:        150001,
	})
	assert.ErrorIs(t, err, domainErrors.ErrRefundExceedsHeld)
}

func TestRefundPayment_NotFound(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.RefundPayment(context.Background(), RefundPaymentRequest{TransactionID: "no-such-txn"})
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

// recordingLocker writes lock lifecycle events into a shared call list so
// tests can assert ordering against database transactions.
type recordingLocker struct {
	calls *[]string
}

func (l recordingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	*l.calls = append(*l.calls, "lock")
	err := fn(ctx)
	*l.calls = append(*l.calls, "unlock")
	return err
}

func TestRefundPayment_LockBeforeTransaction(t *testing.T) {
	txRepo := testutil.NewMockTransactionRepository()
	escrowRepo := testutil.NewMockEscrowRepository()
	paymentRepo := testutil.NewMockPaymentRepository()
	txManager := testutil.NewMockTransactionManager()

	var calls []string
	txManager.WithTransactionFunc = func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls = append(calls, "begin")
		err := fn(ctx)
		calls = append(calls, "end")
		return err
	}

	registry := gateway.NewRegistry(gateway.NewMockProvider(transaction.ProviderBkash, txRepo))
	escrowSvc := NewEscrowService(escrowRepo, txManager, recordingLocker{calls: &calls}, 0.05, zerolog.Nop())
	svc := NewPaymentService(registry, escrowSvc, txRepo, paymentRepo, txManager, zerolog.Nop())

	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	// The escrow lock must be held before the database transaction begins
	// and released only after it ends; a lock wait inside an open
	// transaction would pin a pooled connection.
	idx := len(calls)
	_, err = svc.RefundPayment(context.Background(), RefundPaymentRequest{TransactionID: resp.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "begin", "begin", "end", "end", "unlock"}, calls[idx:])
}

func TestGetTransaction_ProbesAllProviders(t *testing.T) {
	svc, _ := setupPaymentService()
	resp := createTestPayment(t, svc, "nagad")

	tx, err := svc.GetTransaction(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.ProviderNagad, tx.Provider)
	assert.Equal(t, resp.TransactionID, tx.TransactionID)
}

func TestGetTransaction_NotFound(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.GetTransaction(context.Background(), "no-such-txn")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestListTransactions_MergedAcrossProviders(t *testing.T) {
	svc, deps := setupPaymentService()

	base := time.Now()
	for i := 0; i < 3; i++ {
		tx := testutil.NewTestTransaction(transaction.ProviderBkash, fmt.Sprintf("bkash_txn_%d", i), 10000)
		tx.CreatedAt = base.Add(time.Duration(i*2) * time.Minute)
		require.NoError(t, deps.txRepo.Create(context.Background(), tx))

		tx = testutil.NewTestTransaction(transaction.ProviderNagad, fmt.Sprintf("nagad_txn_%d", i), 10000)
		tx.CreatedAt = base.Add(time.Duration(i*2+1) * time.Minute)
		require.NoError(t, deps.txRepo.Create(context.Background(), tx))
	}

	list, err := svc.ListTransactions(context.Background(), "", 4, 0)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	assert.Equal(t, "nagad_txn_2", list[0].TransactionID)
	assert.Equal(t, "bkash_txn_2", list[1].TransactionID)

	// provider-scoped listing only sees that provider
	list, err = svc.ListTransactions(context.Background(), "bkash", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, tx := range list {
		assert.Equal(t, transaction.ProviderBkash, tx.Provider)
	}
}

func TestListTransactions_DefaultLimit(t *testing.T) {
	svc, deps := setupPaymentService()

	base := time.Now()
	for i := 0; i < 11; i++ {
		tx := testutil.NewTestTransaction(transaction.ProviderBkash, fmt.Sprintf("bkash_txn_%d", i), 10000)
		tx.CreatedAt = base.Add(time.Duration(i*2) * time.Minute)
		require.NoError(t, deps.txRepo.Create(context.Background(), tx))

		tx = testutil.NewTestTransaction(transaction.ProviderNagad, fmt.Sprintf("nagad_txn_%d", i), 10000)
		tx.CreatedAt = base.Add(time.Duration(i*2+1) * time.Minute)
		require.NoError(t, deps.txRepo.Create(context.Background(), tx))
	}

	// 22 transactions exist; a zero limit pages at the default size
	list, err := svc.ListTransactions(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestGetTransactionLog(t *testing.T) {
	svc, _ := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")
	_, err := svc.VerifyPayment(context.Background(), "bkash", resp.TransactionID)
	require.NoError(t, err)

	logs, err := svc.GetTransactionLog(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, transaction.StatusPending, logs[0].NewStatus)
	assert.Equal(t, transaction.StatusCompleted, logs[1].NewStatus)
}

func webhookBody(t *testing.T, transactionID string) []byte {
	t.Helper()
	body, err := json.Marshal(WebhookPayload{
		TransactionID: transactionID,
		OrderID:       "order-1",
		Status:        "Completed",
		Amount:        1500.00,
		Currency:      "BDT",
	})
	require.NoError(t, err)
	return body
}

func TestProcessWebhook(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	body := webhookBody(t, resp.TransactionID)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := gateway.SignWebhookPayload("mock-secret", body, timestamp)

	verify, err := svc.ProcessWebhook(context.Background(), "bkash", body, signature, timestamp)
	require.NoError(t, err)
	assert.True(t, verify.Verified)

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)
}

func TestProcessWebhook_BadSignature(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	body := webhookBody(t, resp.TransactionID)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := gateway.SignWebhookPayload("wrong-secret", body, timestamp)

	_, err := svc.ProcessWebhook(context.Background(), "bkash", body, signature, timestamp)
	assert.ErrorIs(t, err, domainErrors.ErrSignatureInvalid)
	assert.Zero(t, deps.bkash.verifyCalls.Load())

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)
}

func TestProcessWebhook_ReplayDoesNotDoubleHold(t *testing.T) {
	svc, deps := setupPaymentService()
	resp := createTestPayment(t, svc, "bkash")

	body := webhookBody(t, resp.TransactionID)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := gateway.SignWebhookPayload("mock-secret", body, timestamp)

	for i := 0; i < 3; i++ {
		verify, err := svc.ProcessWebhook(context.Background(), "bkash", body, signature, timestamp)
		require.NoError(t, err)
		assert.True(t, verify.Verified)
	}

	stored, err := deps.txRepo.GetByTransactionID(context.Background(), transaction.ProviderBkash, resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored.EscrowID)
	entries, err := deps.escrowRepo.GetLedgerEntries(context.Background(), *stored.EscrowID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int32(1), deps.bkash.verifyCalls.Load())
}

func TestProcessWebhook_MissingTransactionID(t *testing.T) {
	svc, _ := setupPaymentService()

	body := []byte(`{"status":"Completed"}`)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := gateway.SignWebhookPayload("mock-secret", body, timestamp)

	_, err := svc.ProcessWebhook(context.Background(), "bkash", body, signature, timestamp)
	var vErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestListPayments(t *testing.T) {
	svc, _ := setupPaymentService()
	createTestPayment(t, svc, "bkash")
	createTestPayment(t, svc, "nagad")

	payments, err := svc.ListPayments(context.Background(), payment.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}
