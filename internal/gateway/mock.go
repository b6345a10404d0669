package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/google/uuid"
)

// MockProvider simulates a gateway for tests and sandbox runs.
type MockProvider struct {
	storeReader
	webhookVerifier
	name         transaction.Provider
	failureRate  float64 // 0.0 to 1.0
	latency      time.Duration
	verifyStatus transaction.Status
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

// WithVerifyStatus fixes the status every verification reports.
func WithVerifyStatus(s transaction.Status) MockProviderOption {
	return func(p *MockProvider) { p.verifyStatus = s }
}

func WithWebhookSecret(secret string) MockProviderOption {
	return func(p *MockProvider) { p.webhookVerifier = webhookVerifier{secret: []byte(secret)} }
}

func NewMockProvider(name transaction.Provider, transactions transaction.Repository, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		storeReader:     storeReader{provider: name, transactions: transactions},
		webhookVerifier: webhookVerifier{secret: []byte("mock-secret")},
		name:            name,
		failureRate:     0.0,
		latency:         0,
		verifyStatus:    transaction.StatusCompleted,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() transaction.Provider { return p.name }

func (p *MockProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s_txn_%s", p.name, uuid.New().String()[:8])
	return &Result{
		TransactionID: id,
		Status:        transaction.StatusPending,
		Amount:        req.Amount.Value,
		Currency:      req.Amount.Currency,
		PaymentURL:    fmt.Sprintf("https://sandbox.%s.test/checkout/pay/%s", p.name, id),
		RawStatus:     "Initiated",
	}, nil
}

func (p *MockProvider) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		TransactionID: transactionID,
		Status:        p.verifyStatus,
		RawStatus:     string(p.verifyStatus),
	}
	if stored, err := p.GetTransaction(ctx, transactionID); err == nil {
		result.Amount = stored.Amount.Value
		result.Currency = stored.Amount.Currency
	}
	return result, nil
}

func (p *MockProvider) simulate(ctx context.Context) error {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if rand.Float64() < p.failureRate {
		return errors.NewGatewayError(string(p.name), "simulated_failure", "simulated gateway failure", true, nil)
	}
	return nil
}
