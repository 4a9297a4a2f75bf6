package catalog

import (
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/shopspring/decimal"
)

// The seed mirrors migrations/000002_seed_catalog.up.sql.

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func moneyPtr(s string) *decimal.Decimal {
	m := money(s)
	return &m
}

func SeedCategories() []domain.Category {
	return []domain.Category{
		{ID: "collaboration", Title: "Collaboration"},
		{ID: "security", Title: "Security"},
	}
}

func SeedPlans() []domain.Plan {
	return []domain.Plan{
		{
			ID:           "starter",
			CategoryID:   "collaboration",
			Title:        "Starter",
			Description:  "For small teams getting started",
			MonthlyPrice: money("19"),
			AnnualPrice:  money("190"),
			AddOns: []domain.AddOn{
				{ID: "priority-support", Title: "Priority support", Price: money("9")},
			},
			Limits: map[string]int{"projects": 5},
		},
		{
			ID:           "team",
			CategoryID:   "collaboration",
			Title:        "Team",
			Description:  "Per-seat pricing for growing teams",
			MonthlyPrice: money("999"),
			AnnualPrice:  money("9990"),
			PerSeatPrice: moneyPtr("50"),
			AddOns: []domain.AddOn{
				{ID: "sso", Title: "Single sign-on", Price: money("99")},
				{ID: "audit-log", Title: "Audit log", Price: money("49")},
			},
			Limits:  map[string]int{"projects": 50},
			Popular: true,
		},
		{
			ID:           "vault",
			CategoryID:   "security",
			Title:        "Vault",
			Description:  "Secrets management with compliance reporting",
			MonthlyPrice: money("2499"),
			AnnualPrice:  money("24990"),
			PerSeatPrice: moneyPtr("40"),
			AddOns: []domain.AddOn{
				{ID: "sso", Title: "Single sign-on", Price: money("99")},
				{ID: "dedicated-support", Title: "Dedicated support", Price: money("299")},
			},
		},
	}
}

func SeedCoupons() []domain.Coupon {
	expired := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)
	return []domain.Coupon{
		{Code: "WELCOME10", Type: domain.DiscountPercent, Amount: money("10")},
		{Code: "SAVE20", Type: domain.DiscountPercent, Amount: money("20"), MaxUses: 100},
		{Code: "FLAT50", Type: domain.DiscountFixed, Amount: money("50")},
		{Code: "WINTER24", Type: domain.DiscountPercent, Amount: money("15"), ValidUntil: &expired},
	}
}
