package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carenet/payments/internal/bootstrap"
	"github.com/carenet/payments/internal/controller"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/carenet/payments/internal/gateway"
	"github.com/carenet/payments/internal/infrastructure/config"
	infraRedis "github.com/carenet/payments/internal/infrastructure/redis"
	"github.com/carenet/payments/internal/repository/postgres"
	"github.com/carenet/payments/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "payments-api", "payments")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	txRepo := postgres.NewTransactionRepository(app.Pool)
	escrowRepo := postgres.NewEscrowRepository(app.Pool)
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Gateway registry ---
	registry := gateway.NewRegistry(buildProviders(app, txRepo)...)

	// --- Services ---
	locker := infraRedis.NewLocker(app.Redis, app.Config.Escrow.LockTTL)
	escrowService := service.NewEscrowService(escrowRepo, txManager, locker, app.Config.Escrow.FeeRate, app.Logger)
	paymentService := service.NewPaymentService(registry, escrowService, txRepo, paymentRepo, txManager, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		PaymentService:  paymentService,
		EscrowService:   escrowService,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
		Redeliverer:     infraRedis.NewStreamProducer(app.Redis),

		RateLimitPerMinute: app.Config.Server.RateLimitPerMinute,
		JWTSecret:          app.Config.Auth.JWTSecret,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}

// buildProviders assembles the gateway adapters from config. With
// gateways.use_mock set (local development, CI) the sandbox adapters
// are replaced by in-memory mocks that settle against the store.
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
