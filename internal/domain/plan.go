package domain

import (
	"github.com/shopspring/decimal"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalAnnual
}

type Category struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title" validate:"required"`
}

type AddOn struct {
	ID    string          `json:"id" validate:"required"`
	Title string          `json:"title" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

// Plan is immutable catalog reference data. PerSeatPrice is a monthly rate.
type Plan struct {
	ID           string           `json:"id" validate:"required"`
	CategoryID   string           `json:"category_id" validate:"required"`
	Title        string           `json:"title" validate:"required"`
	Description  string           `json:"description"`
	MonthlyPrice decimal.Decimal  `json:"monthly_price"`
	AnnualPrice  decimal.Decimal  `json:"annual_price"`
	PerSeatPrice *decimal.Decimal `json:"per_seat_price,omitempty"`
	AddOns       []AddOn          `json:"add_ons" validate:"dive"`
	Limits       map[string]int   `json:"limits,omitempty"`
	Popular      bool             `json:"popular"`
}

// PlanFilter narrows ListPlans. Empty fields match everything.
type PlanFilter struct {
	CategoryID  string
	PopularOnly bool
}

func (f PlanFilter) Matches(p Plan) bool {
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if f.PopularOnly && !p.Popular {
		return false
	}
	return true
}

func (p Plan) BasePrice(interval BillingInterval) decimal.Decimal {
	if interval == IntervalAnnual {
		return p.AnnualPrice
	}
	return p.MonthlyPrice
}

// SeatPrice returns the per-seat rate for the interval and false when the plan
// is not priced per seat.
func (p Plan) SeatPrice(interval BillingInterval) (decimal.Decimal, bool) {
	if p.PerSeatPrice == nil {
		return decimal.Zero, false
	}
	if interval == IntervalAnnual {
		return p.PerSeatPrice.Mul(monthsPerYear), true
	}
	return *p.PerSeatPrice, true
}

func (p Plan) AddOn(id string) (AddOn, bool) {
	for _, a := range p.AddOns {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

func (p Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if err := nonNegative("monthly_price", p.MonthlyPrice); err != nil {
		return err
	}
	if err := nonNegative("annual_price", p.AnnualPrice); err != nil {
		return err
	}
	if p.PerSeatPrice != nil {
		if err := nonNegative("per_seat_price", *p.PerSeatPrice); err != nil {
			return err
		}
	}
	for _, a := range p.AddOns {
		if err := nonNegative("add_on "+a.ID+" price", a.Price); err != nil {
			return err
		}
	}
	return nil
}
