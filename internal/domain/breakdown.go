package domain

import "github.com/shopspring/decimal"

// PriceBreakdown is always derived from a PlanConfig; it is never a source of truth.
type PriceBreakdown struct {
	BasePrice      decimal.Decimal `json:"base_price"`
	SeatsCost      decimal.Decimal `json:"seats_cost"`
	AddOnsCost     decimal.Decimal `json:"add_ons_cost"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxableAmount  decimal.Decimal `json:"taxable_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// Equal compares every amount numerically.
func (b PriceBreakdown) Equal(o PriceBreakdown) bool {
	return b.Currency == o.Currency &&
		b.BasePrice.Equal(o.BasePrice) &&
		b.SeatsCost.Equal(o.SeatsCost) &&
		b.AddOnsCost.Equal(o.AddOnsCost) &&
		b.Subtotal.Equal(o.Subtotal) &&
		b.DiscountAmount.Equal(o.DiscountAmount) &&
		b.TaxableAmount.Equal(o.TaxableAmount) &&
		b.TaxAmount.Equal(o.TaxAmount) &&
		b.Total.Equal(o.Total)
}
