package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/coupon"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrPlanNotFound = errors.New("plan not found")

type PlanSource interface {
	GetPlan(ctx context.Context, id string) (domain.Plan, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

// Quote is a priced configuration. CouponError carries a displayable coupon
// failure; the breakdown is still returned, without discount.
type Quote struct {
	Plan        domain.Plan           `json:"-"`
	Config      domain.PlanConfig     `json:"config"`
	Breakdown   domain.PriceBreakdown `json:"breakdown"`
	Coupon      *domain.Coupon        `json:"coupon,omitempty"`
	CouponError string                `json:"coupon_error,omitempty"`
	Adjustments []domain.Adjustment   `json:"adjustments,omitempty"`
}

type Calculator struct {
	plans    PlanSource
	coupons  CouponValidator
	taxRate  decimal.Decimal
	currency string
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewCalculator takes the tax rate as a percentage, e.g. 10 for 10%.
func NewCalculator(plans PlanSource, coupons CouponValidator, taxPercent decimal.Decimal, currency string, m *metrics.Metrics, logger zerolog.Logger) *Calculator {
	return &Calculator{
		plans:    plans,
		coupons:  coupons,
		taxRate:  taxPercent.Div(decimal.NewFromInt(100)),
		currency: currency,
		now:      time.Now,
		metrics:  m,
		logger:   logger.With().Str("component", "pricing").Logger(),
	}
}

// WithClock replaces the time source used for coupon validity checks.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Quote resolves the plan and optional coupon and prices the configuration.
// An unknown plan fails with ErrPlanNotFound and no breakdown.
func (c *Calculator) Quote(ctx context.Context, cfg domain.PlanConfig, couponCode string) (*Quote, error) {
	start := time.Now()
	defer func() { c.metrics.QuoteDuration.Observe(time.Since(start).Seconds()) }()

	cfg, adj, err := cfg.Normalized()
	if err != nil {
		return nil, err
	}
	c.reportAdjustments(cfg.PlanID, adj)

	plan, err := c.plans.GetPlan(ctx, cfg.PlanID)
	if errors.Is(err, catalog.ErrPlanNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, cfg.PlanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", cfg.PlanID, err)
	}

	q := &Quote{Plan: plan, Config: cfg, Adjustments: adj}
	if couponCode != "" {
		cp, err := c.coupons.Validate(ctx, couponCode, c.now())
		switch {
		case err == nil:
			q.Coupon = &cp
		case coupon.IsDisplayable(err):
			q.CouponError = err.Error()
		default:
			return nil, err
		}
	}

	q.Breakdown = ComputeBreakdown(plan, cfg, q.Coupon, c.taxRate)
	q.Breakdown.Currency = c.currency
	return q, nil
}

func (c *Calculator) reportAdjustments(planID string, adj []domain.Adjustment) {
	for _, a := range adj {
		c.metrics.RecordClamp(a.Field)
		c.logger.Warn().
			Str("plan_id", planID).
			Str("field", a.Field).
			Int("requested", a.Requested).
			Int("applied", a.Applied).
			Msg("Clamped configuration value")
	}
}
