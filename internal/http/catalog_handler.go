package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Quoter interface {
	Quote(ctx context.Context, cfg domain.PlanConfig, couponCode string) (*pricing.Quote, error)
}

type CouponChecker interface {
	Validate(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

// CatalogHandler serves plans, categories, coupon checks and standalone quotes.
type CatalogHandler struct {
	store   catalog.Store
	quoter  Quoter
	coupons CouponChecker
	timeout time.Duration
	logger  zerolog.Logger
}

func NewCatalogHandler(store catalog.Store, quoter Quoter, coupons CouponChecker, timeout time.Duration, logger zerolog.Logger) *CatalogHandler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CatalogHandler{
		store:   store,
		quoter:  quoter,
		coupons: coupons,
		timeout: timeout,
		logger:  logger,
	}
}

type QuoteRequestDTO struct {
	PlanID     string   `json:"plan_id" validate:"required"`
	Interval   string   `json:"interval" validate:"omitempty,oneof=monthly annual"`
	Seats      int      `json:"seats"`
	AddOnIDs   []string `json:"add_on_ids"`
	Quantity   int      `json:"quantity"`
	CouponCode string   `json:"coupon_code"`
}

func (d QuoteRequestDTO) config() domain.PlanConfig {
	interval := domain.BillingInterval(d.Interval)
	if interval == "" {
		interval = domain.IntervalMonthly
	}
	return domain.PlanConfig{
		PlanID:   d.PlanID,
		Interval: interval,
		Seats:    d.Seats,
		AddOnIDs: d.AddOnIDs,
		Quantity: d.Quantity,
	}
}

type CouponResponseDTO struct {
	Coupon domain.Coupon `json:"coupon"`
	Valid  bool          `json:"valid"`
}

// GET /api/v1/plans?category=&popular=
func (h *CatalogHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter := domain.PlanFilter{CategoryID: r.URL.Query().Get("category")}
	if raw := r.URL.Query().Get("popular"); raw != "" {
		popular, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_popular", "popular must be a boolean")
			return
		}
		filter.PopularOnly = popular
	}

	plans, err := h.store.ListPlans(ctx, filter)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if plans == nil {
		plans = make([]domain.Plan, 0)
	}
	respondJSON(w, http.StatusOK, plans)
}

// GET /api/v1/plans/{planID}
func (h *CatalogHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plan, err := h.store.GetPlan(ctx, chi.URLParam(r, "planID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// GET /api/v1/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if categories == nil {
		categories = make([]domain.Category, 0)
	}
	respondJSON(w, http.StatusOK, categories)
}

// GET /api/v1/coupons/{code} checks a code without applying it.
func (h *CatalogHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.coupons.Validate(ctx, chi.URLParam(r, "code"), time.Now())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CouponResponseDTO{Coupon: c, Valid: true})
}

// POST /api/v1/quotes
func (h *CatalogHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req QuoteRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.quoter.Quote(ctx, req.config(), req.CouponCode)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}
