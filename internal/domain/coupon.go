package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Coupon grants a percent or fixed discount. The optional window and usage
// fields are unconstrained when left at their zero values.
type Coupon struct {
	Code       string          `json:"code" validate:"required"`
	Type       DiscountType    `json:"type" validate:"oneof=percent fixed"`
	Amount     decimal.Decimal `json:"amount"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	MaxUses    int             `json:"max_uses,omitempty" validate:"gte=0"`
	Uses       int             `json:"uses,omitempty" validate:"gte=0"`
}

// NormalizeCode is the canonical form used for case-insensitive matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c Coupon) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: coupon %s amount must be positive", ErrInvalidRecord, c.Code)
	}
	if c.Type == DiscountPercent && c.Amount.GreaterThan(hundred) {
		return fmt.Errorf("%w: coupon %s percent must not exceed 100", ErrInvalidRecord, c.Code)
	}
	return nil
}

// Discount computes the reduction for a subtotal. Fixed amounts never exceed
// the subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	switch c.Type {
	case DiscountPercent:
		return PercentOf(subtotal, c.Amount)
	case DiscountFixed:
		return decimal.Min(c.Amount, subtotal)
	default:
		return decimal.Zero
	}
}

// Expired reports whether now falls outside [ValidFrom, ValidUntil].
func (c Coupon) Expired(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return true
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return true
	}
	return false
}

func (c Coupon) Exhausted() bool {
	return c.MaxUses > 0 && c.Uses >= c.MaxUses
}
