// Package httpx exposes the read-only HTTP surface of the participant:
// a health probe and a payment status lookup for operators and debugging.
// All writes go through the saga; this surface never mutates the ledger.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/payment-saga/internal/payment/domain"
)

// Handler serves payment status lookups straight from the ledger port.
type Handler struct {
	ledger domain.Repository
}

func NewHandler(ledger domain.Repository) *Handler {
	return &Handler{ledger: ledger}
}

// GetPayment returns the stored payment for an (orderID, transactionID) pair.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	transactionID := chi.URLParam(r, "transactionID")

	payment, err := h.ledger.Find(r.Context(), orderID, transactionID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "ledger_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapPaymentToResponse(payment))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func mapPaymentToResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
		TotalAmount:   p.TotalAmount,
		TotalItems:    p.TotalItems,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
