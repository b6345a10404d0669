package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

// Redeliverer enqueues a webhook for asynchronous re-verification.
// Satisfied by the redis stream producer; nil disables redelivery.
type Redeliverer interface {
	PublishWebhookRetry(ctx context.Context, provider, transactionID string, attempt int) error
}

// WebhookController receives gateway status pushes.
type WebhookController struct {
	paymentService *service.PaymentService
	redeliverer    Redeliverer
}

// NewWebhookController creates a new WebhookController.
func NewWebhookController(paymentService *service.PaymentService, redeliverer Redeliverer) *WebhookController {
	return &WebhookController{paymentService: paymentService, redeliverer: redeliverer}
}

// Handle handles POST /api/v1/webhooks/{provider}. The signature covers
// the raw body, so the body is read before any decoding.
func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("body", "unreadable webhook body"))
		return
	}

	providerName := chi.URLParam(r, "provider")
	resp, err := h.paymentService.ProcessWebhook(
		r.Context(),
		providerName,
		body,
		r.Header.Get("X-Signature"),
		r.Header.Get("X-Timestamp"),
	)
	if err != nil {
		// A transient gateway failure after a valid signature goes to the
		// redelivery stream; verification is idempotent, so the worker can
		// safely retry. The gateway sees 202 and stops re-sending.
		if domainErrors.IsRetryable(err) && h.redeliverer != nil {
			var payload service.WebhookPayload
			if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil && payload.TransactionID != "" {
				if pubErr := h.redeliverer.PublishWebhookRetry(r.Context(), providerName, payload.TransactionID, 0); pubErr == nil {
					writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
					return
				}
			}
		}
		writeError(w, err)
		return
	}

	status := "pending"
	if resp.Verified {
		status = "processed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"transaction": FromTransaction(resp.Transaction),
	})
}
