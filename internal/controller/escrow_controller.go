package controller

import (
	"net/http"
	"strconv"

	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EscrowController handles escrow HTTP requests. Release and refund are
// operator endpoints; funds normally move through the payment flow.
type EscrowController struct {
	escrowService *service.EscrowService
}

// NewEscrowController creates a new EscrowController.
func NewEscrowController(escrowService *service.EscrowService) *EscrowController {
	return &EscrowController{escrowService: escrowService}
}

// GetEscrow handles GET /api/v1/escrows/{id}
func (h *EscrowController) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid escrow id", Code: "invalid_id"})
		return
	}

	rec, entries, err := h.escrowService.GetEscrow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromEscrow(rec, entries))
}

// ListEscrows handles GET /api/v1/escrows
func (h *EscrowController) ListEscrows(w http.ResponseWriter, r *http.Request) {
	filter := escrow.ListFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		status := escrow.Status(s)
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.escrowService.ListEscrows(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*EscrowResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, FromEscrow(rec, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReleaseEscrow handles POST /api/v1/escrows/{id}/release
func (h *EscrowController) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid escrow id", Code: "invalid_id"})
		return
	}

	var req ReleaseEscrowRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.escrowService.Release(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromEscrow(rec, nil))
}

// RefundEscrow handles POST /api/v1/escrows/{id}/refund
func (h *EscrowController) RefundEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid escrow id", Code: "invalid_id"})
		return
	}

	var req RefundEscrowRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, _, err := h.escrowService.Refund(r.Context(), id, money.FromMajor(req.Amount), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromEscrow(rec, nil))
}
