package pricing

import (
	"github.com/fjod/plancart/internal/domain"
	"github.com/shopspring/decimal"
)

// ComputeBreakdown prices one plan configuration. It is pure: the same
// arguments always produce the same breakdown. taxRate is a fraction, so 0.10
// means 10%. A nil coupon means no discount. Currency is left for the caller.
func ComputeBreakdown(plan domain.Plan, cfg domain.PlanConfig, coupon *domain.Coupon, taxRate decimal.Decimal) domain.PriceBreakdown {
	seats := max(cfg.Seats, 1)
	quantity := max(cfg.Quantity, 1)

	base := plan.BasePrice(cfg.Interval)

	// Zero when the plan is not priced per seat.
	perSeat, _ := plan.SeatPrice(cfg.Interval)
	seatsCost := perSeat.Mul(decimal.NewFromInt(int64(seats)))

	addOnsCost := decimal.Zero
	for _, id := range cfg.AddOnIDs {
		if a, ok := plan.AddOn(id); ok {
			addOnsCost = addOnsCost.Add(a.Price)
		}
	}

	subtotal := domain.ItemTotal(base, perSeat, seats, addOnsCost, quantity)
	discount := coupon.Discount(subtotal)
	taxable := decimal.Max(decimal.Zero, subtotal.Sub(discount))
	tax := domain.RoundCents(taxable.Mul(taxRate))

	return domain.PriceBreakdown{
		BasePrice:      base,
		SeatsCost:      seatsCost,
		AddOnsCost:     addOnsCost,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TaxAmount:      tax,
		Total:          taxable.Add(tax),
	}
}
