package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	hundred       = decimal.NewFromInt(100)

	validate = validator.New(validator.WithRequiredStructEnabled())
)

func init() {
	// Amounts are exchanged as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentOf returns amount * percent / 100 rounded to cents.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundCents(amount.Mul(percent).Div(hundred))
}

// ItemTotal is the single combination rule shared by the calculator and the
// cart: (base + perUnit*seats + addOns) * quantity.
func ItemTotal(base, perUnit decimal.Decimal, seats int, addOns decimal.Decimal, quantity int) decimal.Decimal {
	seatsCost := perUnit.Mul(decimal.NewFromInt(int64(seats)))
	return base.Add(seatsCost).Add(addOns).Mul(decimal.NewFromInt(int64(quantity)))
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidRecord, field)
	}
	return nil
}
