package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/plancart/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

type CheckoutService interface {
	Checkout(ctx context.Context, cartID, idempotencyKey string) (*orders.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration, logger zerolog.Logger) *CheckoutHandler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   logger,
	}
}

// POST /api/v1/carts/{cartID}/checkout
// A repeated Idempotency-Key returns the original order with 200 instead of 201.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key := r.Header.Get(idempotencyKeyHeader)
	if len(key) > 255 {
		respondError(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key must be at most 255 characters")
		return
	}

	order, replayed, err := h.checkout.Checkout(ctx, chi.URLParam(r, "cartID"), key)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if replayed {
		w.Header().Set(replayedHeader, "true")
		respondJSON(w, http.StatusOK, order)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID.String())
	respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders/{orderID}
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.checkout.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
