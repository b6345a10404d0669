package controller

import (
	"net/http"
	"strconv"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/payment"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/carenet/payments/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentController handles payment and transaction HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentRequest{
		PayerID:  req.PayerID,
		Method:   req.Method,
		Amount:   money.FromMajor(req.Amount),
		Currency: req.Currency,
		OrderID:  req.OrderID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatePaymentResponse{
		PaymentURL:    resp.PaymentURL,
		TransactionID: resp.TransactionID,
		InvoiceNumber: resp.InvoiceNumber,
		Amount:        money.ToMajor(resp.Amount.Value),
		Currency:      resp.Amount.Currency,
	})
}

// VerifyPayment handles GET /api/v1/payments/verify
func (h *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	transactionID := r.URL.Query().Get("transaction_id")
	if provider == "" || transactionID == "" {
		writeError(w, domainErrors.NewValidationError("query", "provider and transaction_id are required"))
		return
	}

	resp, err := h.paymentService.VerifyPayment(r.Context(), provider, transactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyPaymentResponse{
		Verified:         resp.Verified,
		AlreadyCompleted: resp.AlreadyCompleted,
		Transaction:      FromTransaction(resp.Transaction),
	})
}

// RefundPayment handles POST /api/v1/payments/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req RefundPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.RefundPayment(r.Context(), service.RefundPaymentRequest{
		TransactionID: req.TransactionID,
		Amount:        money.FromMajor(req.Amount),
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RefundPaymentResponse{
		Transaction:    FromTransaction(resp.Transaction),
		RefundedAmount: money.ToMajor(resp.RefundedAmount),
	})
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}
	if s := r.URL.Query().Get("payer_id"); s != "" {
		filter.PayerID = &s
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentRecordResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPaymentRecord(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTransaction handles GET /api/v1/transactions/{id}
func (h *PaymentController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.paymentService.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(tx))
}

// ListTransactions handles GET /api/v1/transactions
func (h *PaymentController) ListTransactions(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider != "" {
		if _, err := transaction.ParseProvider(provider); err != nil {
			writeError(w, err)
			return
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.paymentService.ListTransactions(r.Context(), provider, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(list))
	for _, tx := range list {
		resp = append(resp, FromTransaction(tx))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTransactionLog handles GET /api/v1/transactions/{id}/log
func (h *PaymentController) GetTransactionLog(w http.ResponseWriter, r *http.Request) {
	logs, err := h.paymentService.GetTransactionLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*LogEntryResponse, 0, len(logs))
	for _, e := range logs {
		resp = append(resp, FromLogEntry(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
