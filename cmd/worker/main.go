package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/carenet/payments/internal/bootstrap"
	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/carenet/payments/internal/gateway"
	"github.com/carenet/payments/internal/infrastructure/config"
	infraRedis "github.com/carenet/payments/internal/infrastructure/redis"
	"github.com/carenet/payments/internal/repository/postgres"
	"github.com/carenet/payments/internal/service"
	"github.com/carenet/payments/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "payments-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories and services ---
	txRepo := postgres.NewTransactionRepository(app.Pool)
	escrowRepo := postgres.NewEscrowRepository(app.Pool)
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	registry := gateway.NewRegistry(buildProviders(app, txRepo)...)
	locker := infraRedis.NewLocker(app.Redis, app.Config.Escrow.LockTTL)
	escrowService := service.NewEscrowService(escrowRepo, txManager, locker, app.Config.Escrow.FeeRate, app.Logger)
	paymentService := service.NewPaymentService(registry, escrowService, txRepo, paymentRepo, txManager, app.Logger)

	// --- Webhook redelivery consumer ---
	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.WebhookStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}
	producer := infraRedis.NewStreamProducer(app.Redis)

	app.Logger.Info().
		Str("stream", infraRedis.WebhookStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Webhook redelivery (re-verifies transactions whose webhook could
	//    not be settled synchronously).
	g.Go(func() error {
		return runWebhookRedelivery(gCtx, app, consumer, producer, paymentService)
	})

	// 2. Escrow reconciler (periodic ledger audit of open escrows).
	g.Go(func() error {
		return runEscrowReconciler(gCtx, app.Logger, app, escrowService, workerCfg.ReconcileEvery)
	})

	// 3. Idempotency key janitor.
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runWebhookRedelivery drains the redelivery stream. Each message is a
// single verification attempt against the gateway; verification is
// idempotent, so a message delivered twice settles the transaction once.
func runWebhookRedelivery(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	producer *infraRedis.StreamProducer,
	paymentService *service.PaymentService,
) error {
	logger := app.Logger
	maxRetries := app.Config.Worker.MaxRetries

	// Transient gateway failures get a few quick in-process attempts
	// before the message goes back on the stream.
	retryCfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: app.Config.Worker.RetryDelay,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		RetryIf:      domainErrors.IsRetryable,
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				provider, _ := msg.Values["provider"].(string)
				transactionID, _ := msg.Values["transaction_id"].(string)
				attemptRaw, _ := msg.Values["attempt"].(string)
				attempt, _ := strconv.Atoi(attemptRaw)

				if provider == "" || transactionID == "" {
					logger.Error().Interface("values", msg.Values).Msg("Malformed redelivery message")
					consumer.Ack(ctx, msg.ID)
					continue
				}

				start := time.Now()
				_, err := retry.DoWithResult(ctx, retryCfg, func() (*service.VerifyPaymentResponse, error) {
					return paymentService.VerifyPayment(ctx, provider, transactionID)
				})
				app.Metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.WebhookStream).Observe(time.Since(start).Seconds())

				switch {
				case err == nil:
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.WebhookStream, "success").Inc()

				case domainErrors.IsRetryable(err) && attempt+1 < maxRetries:
					logger.Warn().Err(err).
						Str("provider", provider).
						Str("transaction_id", transactionID).
						Int("attempt", attempt+1).
						Msg("Verification failed, requeueing")
					if pubErr := producer.PublishWebhookRetry(ctx, provider, transactionID, attempt+1); pubErr != nil {
						logger.Error().Err(pubErr).Msg("Failed to requeue webhook")
					}
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.WebhookStream, "retry").Inc()

				default:
					logger.Error().Err(err).
						Str("provider", provider).
						Str("transaction_id", transactionID).
						Msg("Verification failed permanently, parking in DLQ")
					if pubErr := producer.PublishToDLQ(ctx, provider, transactionID, err.Error()); pubErr != nil {
						logger.Error().Err(pubErr).Msg("Failed to publish to DLQ")
					}
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.WebhookStream, "dlq").Inc()
				}

				consumer.Ack(ctx, msg.ID)
			}
		}
	}
}

// runEscrowReconciler audits every open escrow against its ledger on a
// fixed interval and refreshes the held-funds gauge. A mismatch is loud
// in the logs but never auto-corrected.
func runEscrowReconciler(
	ctx context.Context,
	logger zerolog.Logger,
	app *bootstrap.App,
	escrowService *service.EscrowService,
	interval time.Duration,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		held := escrow.StatusHeld
		var totalHeld int64
		offset := 0
		for {
			records, err := escrowService.ListEscrows(ctx, escrow.ListFilter{
				Status: &held,
				Limit:  100,
				Offset: offset,
			})
			if err != nil {
				logger.Error().Err(err).Msg("Failed to list open escrows")
				break
			}
			if len(records) == 0 {
				break
			}

			for _, rec := range records {
				totalHeld += rec.Amount.Value
				if err := escrowService.Reconcile(ctx, rec.ID); err != nil {
					logger.Error().Err(err).
						Str("escrow_id", rec.ID.String()).
						Msg("Escrow ledger mismatch")
				}
			}
			offset += len(records)
		}

		app.Metrics.EscrowHeldPoisha.Set(float64(totalHeld))
	}
}

func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository) error {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to clean up idempotency keys")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("Cleaned up expired idempotency keys")
		}
	}
}

func buildProviders(app *bootstrap.App, txRepo transaction.Repository) []gateway.Provider {
	if app.Config.Gateways.UseMock {
		app.Logger.Warn().Msg("Using mock payment gateways")
		return []gateway.Provider{
			gateway.NewMockProvider(transaction.ProviderBkash, txRepo),
			gateway.NewMockProvider(transaction.ProviderNagad, txRepo),
		}
	}

	return []gateway.Provider{
		gateway.NewBkash(gatewayConfig(app.Config.Gateways.Bkash), txRepo, app.Logger),
		gateway.NewNagad(gatewayConfig(app.Config.Gateways.Nagad), txRepo, app.Logger),
	}
}

func gatewayConfig(cfg config.GatewayConfig) gateway.Config {
	return gateway.Config{
		BaseURL:     cfg.BaseURL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		AppKey:      cfg.AppKey,
		AppSecret:   cfg.AppSecret,
		CallbackURL: cfg.CallbackURL,
		Timeout:     cfg.Timeout,
	}
}
