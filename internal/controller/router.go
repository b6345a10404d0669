package controller

import (
	"time"

	"github.com/carenet/payments/internal/infrastructure/config"
	"github.com/carenet/payments/internal/infrastructure/observability"
	customMW "github.com/carenet/payments/internal/middleware"
	"github.com/carenet/payments/internal/repository/postgres"
	"github.com/carenet/payments/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	PaymentService  *service.PaymentService
	EscrowService   *service.EscrowService
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
	Redeliverer     Redeliverer

	// RateLimitPerMinute of 0 disables rate limiting; an empty JWTSecret
	// leaves the escrow back-office endpoints open (tests, local dev).
	RateLimitPerMinute int
	JWTSecret          string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	if deps.RateLimitPerMinute > 0 {
		r.Use(customMW.RateLimit(deps.RateLimitPerMinute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.PaymentService)
	escrowH := NewEscrowController(deps.EscrowService)
	webhookH := NewWebhookController(deps.PaymentService, deps.Redeliverer)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Payments
		r.With(idempotencyMW).Post("/payments", paymentH.CreatePayment)
		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/verify", paymentH.VerifyPayment)
		r.With(idempotencyMW).Post("/payments/refund", paymentH.RefundPayment)

		// Transactions
		r.Get("/transactions", paymentH.ListTransactions)
		r.Get("/transactions/{id}", paymentH.GetTransaction)
		r.Get("/transactions/{id}/log", paymentH.GetTransactionLog)

		// Escrows. Release and refund are back-office operations and sit
		// behind auth when a JWT secret is configured.
		r.Get("/escrows", escrowH.ListEscrows)
		r.Get("/escrows/{id}", escrowH.GetEscrow)
		r.Group(func(r chi.Router) {
			if deps.JWTSecret != "" {
				r.Use(customMW.RequireAuth(deps.JWTSecret))
			}
			r.Post("/escrows/{id}/release", escrowH.ReleaseEscrow)
			r.Post("/escrows/{id}/refund", escrowH.RefundEscrow)
		})

		// Webhooks carry their own signature, no idempotency key.
		r.Post("/webhooks/{provider}", webhookH.Handle)
	})

	return r
}
