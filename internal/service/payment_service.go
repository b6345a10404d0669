package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/payment"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/carenet/payments/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

// PaymentService is the public entry point of the payment subsystem. It
// routes work to the gateway adapters through the registry and owns the
// state changes of provider transactions, escrow and payment records.
type PaymentService struct {
	registry      *gateway.Registry
	escrowService *EscrowService
	txRepo        transaction.Repository
	paymentRepo   payment.Repository
	txManager     TransactionManager
	logger        zerolog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	registry *gateway.Registry,
	escrowService *EscrowService,
	txRepo transaction.Repository,
	paymentRepo payment.Repository,
	txManager TransactionManager,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		registry:      registry,
		escrowService: escrowService,
		txRepo:        txRepo,
		paymentRepo:   paymentRepo,
		txManager:     txManager,
		logger:        logger.With().Str("component", "payment_service").Logger(),
	}
}

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	PayerID  string
	Method   string
	Amount   int64 // in poisha
	Currency string
	OrderID  string
}

// CreatePaymentResponse holds the result of creating a payment.
type CreatePaymentResponse struct {
	PaymentURL    string
	TransactionID string
	InvoiceNumber string
	Amount        money.Amount
	Payment       *payment.Payment
}

// CreatePayment opens a gateway checkout session and records the pending
// transaction, its creation log entry and the payment record atomically.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	provider, err := transaction.ParseProvider(req.Method)
	if err != nil {
		return nil, err
	}
	amount, err := money.New(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	adapter, breaker, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	pay, err := payment.NewPayment(req.PayerID, provider, amount, "")
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.CreateCheckout(ctx, gateway.CheckoutRequest{
			OrderID:        req.OrderID,
			Amount:         amount,
			PayerReference: req.PayerID,
			InvoiceNumber:  pay.InvoiceNumber,
		})
	})
	if err != nil {
		return nil, s.wrapBreakerErr(provider, err)
	}

	tx, err := transaction.New(provider, result.TransactionID, req.OrderID, amount)
	if err != nil {
		return nil, err
	}
	pay.TransactionID = result.TransactionID

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			return err
		}
		if err := s.txRepo.AddLogEntry(txCtx,
			transaction.NewLogEntry(tx.ID, "", transaction.StatusPending, "checkout session created")); err != nil {
			return err
		}
		return s.paymentRepo.Create(txCtx, pay)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("provider", string(provider)).
		Str("transaction_id", tx.TransactionID).
		Str("invoice_number", pay.InvoiceNumber).
		Str("amount", amount.String()).
		Msg("payment created")

	return &CreatePaymentResponse{
		PaymentURL:    result.PaymentURL,
		TransactionID: result.TransactionID,
		InvoiceNumber: pay.InvoiceNumber,
		Amount:        amount,
		Payment:       pay,
	}, nil
}

// VerifyPaymentResponse holds the outcome of a verification.
type VerifyPaymentResponse struct {
	Transaction      *transaction.ProviderTransaction
	Verified         bool
	AlreadyCompleted bool
}

// VerifyPayment asks the gateway for the authoritative payment status
// and applies the outcome. It is idempotent: a transaction that already
// completed is returned as-is with no gateway call and no writes, so
// webhook replays and user-redirect races cannot double-hold funds.
func (s *PaymentService) VerifyPayment(ctx context.Context, providerName, transactionID string) (*VerifyPaymentResponse, error) {
	provider, err := transaction.ParseProvider(providerName)
	if err != nil {
		return nil, err
	}
	adapter, breaker, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	stored, err := s.txRepo.GetByTransactionID(ctx, provider, transactionID)
	if err != nil {
		return nil, err
	}

	switch stored.Status {
	case transaction.StatusCompleted, transaction.StatusRefunded:
		return &VerifyPaymentResponse{Transaction: stored, Verified: true, AlreadyCompleted: true}, nil
	case transaction.StatusFailed:
		return &VerifyPaymentResponse{Transaction: stored, Verified: false}, nil
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.VerifyPayment(ctx, transactionID)
	})
	if err != nil {
		return nil, s.wrapBreakerErr(provider, err)
	}

	switch result.Status {
	case transaction.StatusCompleted:
		return s.completePayment(ctx, provider, stored, result)
	case transaction.StatusFailed:
		return s.failPayment(ctx, provider, stored, result)
	default:
		// Still pending at the gateway; nothing to write.
		return &VerifyPaymentResponse{Transaction: stored, Verified: false}, nil
	}
}

// completePayment applies a successful verification in one database
// transaction: the conditional PENDING->COMPLETED update, its log entry,
// the escrow hold with its HOLD ledger entry, and the escrow link.
func (s *PaymentService) completePayment(ctx context.Context, provider transaction.Provider, stored *transaction.ProviderTransaction, result *gateway.Result) (*VerifyPaymentResponse, error) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.TransitionStatus(txCtx, stored.ID, transaction.StatusPending, transaction.StatusCompleted); err != nil {
			return err
		}
		if err := s.txRepo.AddLogEntry(txCtx,
			transaction.NewLogEntry(stored.ID, transaction.StatusPending, transaction.StatusCompleted,
				"gateway reported "+result.RawStatus)); err != nil {
			return err
		}

		rec, err := s.escrowService.HoldFunds(txCtx, stored.TransactionID, stored.Amount)
		if err != nil {
			return err
		}
		if err := s.txRepo.LinkEscrow(txCtx, stored.ID, rec.ID); err != nil {
			return err
		}
		stored.EscrowID = &rec.ID

		return s.updatePaymentStatus(txCtx, stored.TransactionID, payment.StatusCompleted)
	})
	if err != nil {
		// A concurrent verification may have won the conditional update.
		// Re-read and report the settled state instead of an error.
		if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			current, readErr := s.txRepo.GetByTransactionID(ctx, provider, stored.TransactionID)
			if readErr == nil && current.Status == transaction.StatusCompleted {
				return &VerifyPaymentResponse{Transaction: current, Verified: true, AlreadyCompleted: true}, nil
			}
		}
		return nil, err
	}

	stored.Status = transaction.StatusCompleted
	s.logger.Info().
		Str("provider", string(provider)).
		Str("transaction_id", stored.TransactionID).
		Str("escrow_id", stored.EscrowID.String()).
		Msg("payment verified and funds held")
	return &VerifyPaymentResponse{Transaction: stored, Verified: true}, nil
}

// failPayment records a terminal gateway rejection.
func (s *PaymentService) failPayment(ctx context.Context, provider transaction.Provider, stored *transaction.ProviderTransaction, result *gateway.Result) (*VerifyPaymentResponse, error) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.TransitionStatus(txCtx, stored.ID, transaction.StatusPending, transaction.StatusFailed); err != nil {
			return err
		}
		if err := s.txRepo.AddLogEntry(txCtx,
			transaction.NewLogEntry(stored.ID, transaction.StatusPending, transaction.StatusFailed,
				"gateway reported "+result.RawStatus)); err != nil {
			return err
		}
		return s.updatePaymentStatus(txCtx, stored.TransactionID, payment.StatusFailed)
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			current, readErr := s.txRepo.GetByTransactionID(ctx, provider, stored.TransactionID)
			if readErr == nil {
				return &VerifyPaymentResponse{
					Transaction:      current,
					Verified:         current.Status == transaction.StatusCompleted,
					AlreadyCompleted: current.Status == transaction.StatusCompleted,
				}, nil
			}
		}
		return nil, err
	}

	stored.Status = transaction.StatusFailed
	s.logger.Warn().
		Str("provider", string(provider)).
		Str("transaction_id", stored.TransactionID).
		Str("gateway_status", result.RawStatus).
		Msg("payment verification failed")
	return &VerifyPaymentResponse{Transaction: stored, Verified: false}, nil
}

// GetTransaction probes every registered provider for the transaction.
// Ids are provider-scoped, so at most one probe can hit.
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID string) (*transaction.ProviderTransaction, error) {
	providers := s.registry.Providers()
	results := make([]*transaction.ProviderTransaction, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range providers {
		i, name := i, name
		g.Go(func() error {
			adapter, _, err := s.registry.Get(name)
			if err != nil {
				return err
			}
			t, err := adapter.GetTransaction(gctx, transactionID)
			if err != nil {
				if errors.Is(err, domainErrors.ErrTransactionNotFound) {
					return nil
				}
				return err
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range results {
		if t != nil {
			return t, nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

// ListTransactions lists one provider's transactions, or all providers'
// merged newest first when providerName is empty. A limit <= 0 falls
// back to the default page size of 20 on both paths.
func (s *PaymentService) ListTransactions(ctx context.Context, providerName string, limit, offset int) ([]*transaction.ProviderTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if providerName != "" {
		provider, err := transaction.ParseProvider(providerName)
		if err != nil {
			return nil, err
		}
		adapter, _, err := s.registry.Get(provider)
		if err != nil {
			return nil, err
		}
		return adapter.ListTransactions(ctx, limit, offset)
	}

	var merged []*transaction.ProviderTransaction
	for _, name := range s.registry.Providers() {
		adapter, _, err := s.registry.Get(name)
		if err != nil {
			return nil, err
		}
		list, err := adapter.ListTransactions(ctx, limit+offset, 0)
		if err != nil {
			return nil, err
		}
		merged = append(merged, list...)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if offset > 0 {
		if offset >= len(merged) {
			return nil, nil
		}
		merged = merged[offset:]
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// GetTransactionLog returns the append-only log for a transaction.
func (s *PaymentService) GetTransactionLog(ctx context.Context, transactionID string) ([]*transaction.LogEntry, error) {
	tx, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.txRepo.GetLogEntries(ctx, tx.ID)
}

// RefundPaymentRequest holds the input for refunding a payment.
type RefundPaymentRequest struct {
	TransactionID string
	Amount        int64 // in poisha; <= 0 refunds the full amount
	Reason        string
}

// RefundPaymentResponse holds the result of a refund.
type RefundPaymentResponse struct {
	Transaction    *transaction.ProviderTransaction
	RefundedAmount int64
}

// RefundPayment refunds a completed transaction. With a linked escrow
// the funds move through the escrow ledger; the transaction transition
// and the escrow refund commit in one database transaction.
func (s *PaymentService) RefundPayment(ctx context.Context, req RefundPaymentRequest) (*RefundPaymentResponse, error) {
	tx, err := s.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	if tx.Status != transaction.StatusCompleted {
		return nil, domainErrors.NewDomainError(
			"invalid_refund",
			fmt.Sprintf("cannot refund transaction in status %s", tx.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	amount := req.Amount
	if amount <= 0 {
		amount = tx.Amount.Value
	}
	if amount > tx.Amount.Value {
		return nil, domainErrors.NewDomainError(
			"refund_exceeds_held",
			"refund amount exceeds transaction amount",
			domainErrors.ErrRefundExceedsHeld,
		)
	}
	reason := req.Reason
	if reason == "" {
		reason = "payment refunded"
	}

	refunded := amount
	apply := func(txCtx context.Context) error {
		if tx.EscrowID != nil {
			_, escrowRefunded, err := s.escrowService.refundHeld(txCtx, *tx.EscrowID, amount, reason)
			if err != nil {
				return err
			}
			refunded = escrowRefunded
		}

		if err := s.txRepo.TransitionStatus(txCtx, tx.ID, transaction.StatusCompleted, transaction.StatusRefunded); err != nil {
			return err
		}
		if err := s.txRepo.AddLogEntry(txCtx,
			transaction.NewLogEntry(tx.ID, transaction.StatusCompleted, transaction.StatusRefunded, reason)); err != nil {
			return err
		}
		return s.updatePaymentStatus(txCtx, tx.TransactionID, payment.StatusRefunded)
	}

	// The escrow lock is taken before the database transaction opens, the
	// same ordering Release and Refund use, so a lock wait never holds a
	// pooled connection's transaction open.
	if tx.EscrowID != nil {
		err = s.escrowService.locker.WithLock(ctx, lockKey(*tx.EscrowID), func(lockCtx context.Context) error {
			return s.txManager.WithTransaction(lockCtx, apply)
		})
	} else {
		err = s.txManager.WithTransaction(ctx, apply)
	}
	if err != nil {
		return nil, err
	}

	tx.Status = transaction.StatusRefunded
	s.logger.Info().
		Str("provider", string(tx.Provider)).
		Str("transaction_id", tx.TransactionID).
		Int64("refunded_poisha", refunded).
		Str("reason", reason).
		Msg("payment refunded")
	return &RefundPaymentResponse{Transaction: tx, RefundedAmount: refunded}, nil
}

// WebhookPayload is the status push both gateways deliver.
type WebhookPayload struct {
	TransactionID string  `json:"transactionId"`
	OrderID       string  `json:"orderId"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentTime   string  `json:"paymentTime"`
}

// ProcessWebhook verifies a webhook's signature and drives verification
// from its transaction id. The payload's own status field is never
// trusted; the gateway is queried for the authoritative state.
func (s *PaymentService) ProcessWebhook(ctx context.Context, providerName string, body []byte, signature, timestamp string) (*VerifyPaymentResponse, error) {
	provider, err := transaction.ParseProvider(providerName)
	if err != nil {
		return nil, err
	}
	adapter, _, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	if err := adapter.VerifyWebhookSignature(body, signature, timestamp); err != nil {
		s.logger.Warn().
			Str("provider", string(provider)).
			Msg("webhook signature rejected")
		return nil, err
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domainErrors.NewValidationError("body", "malformed webhook payload")
	}
	if payload.TransactionID == "" {
		return nil, domainErrors.NewValidationError("transactionId", "cannot be empty")
	}

	return s.VerifyPayment(ctx, providerName, payload.TransactionID)
}

// ListPayments lists payment records, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return s.paymentRepo.List(ctx, filter)
}

// updatePaymentStatus mirrors a transaction state change onto the payment
// record. Transactions created outside createPayment have no record;
// that is not an error.
func (s *PaymentService) updatePaymentStatus(ctx context.Context, transactionID string, status payment.Status) error {
	p, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return nil
		}
		return err
	}
	return s.paymentRepo.UpdateStatus(ctx, p.ID, status)
}

// wrapBreakerErr normalizes circuit breaker rejections into retryable
// gateway errors; adapter errors pass through unchanged.
func (s *PaymentService) wrapBreakerErr(provider transaction.Provider, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainErrors.NewGatewayError(string(provider), "circuit_open",
			"gateway temporarily unavailable", true, err)
	}
	return err
}
