package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type CartService interface {
	CreateCart(ctx context.Context) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	GetTotals(ctx context.Context, cartID string) (domain.TotalsView, error)
	AddItem(ctx context.Context, cartID string, item domain.CartLineItem) (*domain.Cart, []domain.Adjustment, error)
	AddConfiguredPlan(ctx context.Context, cartID, itemID string, cfg domain.PlanConfig) (*domain.Cart, *pricing.Quote, error)
	UpdateItem(ctx context.Context, cartID, itemID string, patch domain.ItemPatch) (*domain.Cart, []domain.Adjustment, error)
	PreviewUpdate(ctx context.Context, cartID, itemID string, patch domain.ItemPatch) (domain.TotalsView, []domain.Adjustment, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context, cartID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, cartID string) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  zerolog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger zerolog.Logger) *CartHandler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

// AddItemRequestDTO carries either a plan configuration to price and freeze
// or a prebuilt line item, never both.
type AddItemRequestDTO struct {
	ItemID string               `json:"item_id"`
	Plan   *QuoteRequestDTO     `json:"plan"`
	Item   *domain.CartLineItem `json:"item" validate:"-"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code" validate:"required"`
}

type CartResponseDTO struct {
	Cart        *domain.Cart        `json:"cart"`
	State       domain.State        `json:"state"`
	Totals      domain.Totals       `json:"totals"`
	Adjustments []domain.Adjustment `json:"adjustments,omitempty"`
	Quote       *pricing.Quote      `json:"quote,omitempty"`
}

type PreviewResponseDTO struct {
	Totals      domain.TotalsView   `json:"totals"`
	Adjustments []domain.Adjustment `json:"adjustments,omitempty"`
}

func newCartResponse(cart *domain.Cart, adj []domain.Adjustment) CartResponseDTO {
	if cart.Items == nil {
		cart.Items = make([]domain.CartLineItem, 0)
	}
	return CartResponseDTO{
		Cart:        cart,
		State:       cart.State(),
		Totals:      cart.Totals(),
		Adjustments: adj,
	}
}

// POST /api/v1/carts
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.CreateCart(ctx)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/carts/"+cart.ID)
	respondJSON(w, http.StatusCreated, newCartResponse(cart, nil))
}

// GET /api/v1/carts/{cartID}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart, nil))
}

// GET /api/v1/carts/{cartID}/totals
func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.carts.GetTotals(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// POST /api/v1/carts/{cartID}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Plan == nil) == (req.Item == nil) {
		respondError(w, http.StatusBadRequest, "invalid_request", "exactly one of plan or item is required")
		return
	}
	cartID := chi.URLParam(r, "cartID")

	if req.Plan != nil {
		cart, q, err := h.carts.AddConfiguredPlan(ctx, cartID, req.ItemID, req.Plan.config())
		if err != nil {
			handleError(w, r, h.logger, err)
			return
		}
		resp := newCartResponse(cart, q.Adjustments)
		resp.Quote = q
		respondJSON(w, http.StatusCreated, resp)
		return
	}

	item := *req.Item
	if item.ID == "" {
		item.ID = req.ItemID
	}
	cart, adj, err := h.carts.AddItem(ctx, cartID, item)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCartResponse(cart, adj))
}

// PATCH /api/v1/carts/{cartID}/items/{itemID}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var patch domain.ItemPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	cart, adj, err := h.carts.UpdateItem(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "itemID"), patch)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart, adj))
}

// POST /api/v1/carts/{cartID}/items/{itemID}/preview returns the totals an
// update would produce without committing it.
func (h *CartHandler) PreviewUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var patch domain.ItemPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	view, adj, err := h.carts.PreviewUpdate(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "itemID"), patch)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, PreviewResponseDTO{Totals: view, Adjustments: adj})
}

// DELETE /api/v1/carts/{cartID}/items/{itemID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "itemID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart, nil))
}

// POST /api/v1/carts/{cartID}/coupon
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ApplyCouponRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.carts.ApplyCoupon(ctx, chi.URLParam(r, "cartID"), req.Code)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart, nil))
}

// DELETE /api/v1/carts/{cartID}/coupon
func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveCoupon(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart, nil))
}

// DELETE /api/v1/carts/{cartID}
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.DeleteCart(ctx, chi.URLParam(r, "cartID")); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
