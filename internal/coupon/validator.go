package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/metrics"
	"github.com/rs/zerolog"
)

// Displayable failures. None of them should interrupt the caller's flow.
// The usage limit error is shared with the catalog, which reports it when a
// redemption is claimed.
var (
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponExpired           = errors.New("coupon has expired")
	ErrCouponUsageLimitReached = catalog.ErrCouponUsageLimitReached
)

// Source is the part of the catalog the validator reads.
type Source interface {
	GetCoupon(ctx context.Context, code string) (domain.Coupon, error)
}

type Validator struct {
	source  Source
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewValidator(source Source, m *metrics.Metrics, logger zerolog.Logger) *Validator {
	return &Validator{
		source:  source,
		metrics: m,
		logger:  logger.With().Str("component", "coupon_validator").Logger(),
	}
}

// Lookup resolves a code case-insensitively. An unknown code is reported with
// found=false and a nil error; err is only set when the catalog itself fails.
func (v *Validator) Lookup(ctx context.Context, code string) (domain.Coupon, bool, error) {
	normalized := domain.NormalizeCode(code)
	if normalized == "" {
		v.metrics.RecordCouponLookup("not_found")
		return domain.Coupon{}, false, nil
	}

	c, err := v.source.GetCoupon(ctx, normalized)
	if errors.Is(err, catalog.ErrCouponNotFound) {
		v.metrics.RecordCouponLookup("not_found")
		return domain.Coupon{}, false, nil
	}
	if err != nil {
		v.metrics.RecordCouponLookup("error")
		v.logger.Error().Err(err).Str("code", normalized).Msg("Coupon lookup failed")
		return domain.Coupon{}, false, fmt.Errorf("lookup coupon %s: %w", normalized, err)
	}

	v.metrics.RecordCouponLookup("found")
	return c, true, nil
}

// Validate resolves the code and then applies its validity window and usage
// limit as of now.
func (v *Validator) Validate(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	c, found, err := v.Lookup(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if !found {
		return domain.Coupon{}, ErrCouponNotFound
	}
	if c.Expired(now) {
		v.metrics.RecordCouponLookup("expired")
		return domain.Coupon{}, ErrCouponExpired
	}
	if c.Exhausted() {
		v.metrics.RecordCouponLookup("exhausted")
		return domain.Coupon{}, ErrCouponUsageLimitReached
	}
	return c, nil
}

// IsDisplayable reports whether err is a coupon outcome to show inline rather
// than an infrastructure failure.
func IsDisplayable(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponUsageLimitReached) ||
		errors.Is(err, domain.ErrCouponNotApplicable)
}
