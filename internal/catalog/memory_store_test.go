package catalog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMemoryStore_ListPlans(t *testing.T) {
	store := catalog.NewSeededMemoryStore()

	plans, err := store.ListPlans(context.Background(), domain.PlanFilter{})
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "team", plans[0].ID)

	plans, err = store.ListPlans(context.Background(), domain.PlanFilter{CategoryID: "collaboration"})
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestMemoryStore_GetPlan_NotFound(t *testing.T) {
	store := catalog.NewSeededMemoryStore()

	_, err := store.GetPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrPlanNotFound)
}

func TestMemoryStore_RejectsInvalidSeed(t *testing.T) {
	tests := []struct {
		name    string
		plans   []domain.Plan
		coupons []domain.Coupon
	}{
		{
			name: "negative price",
			plans: []domain.Plan{{
				ID: "bad", CategoryID: "c", Title: "Bad",
				MonthlyPrice: decimalOf("-1"), AnnualPrice: decimalOf("10"),
			}},
		},
		{
			name:  "missing title",
			plans: []domain.Plan{{ID: "bad", CategoryID: "c"}},
		},
		{
			name:    "percent over 100",
			coupons: []domain.Coupon{{Code: "X", Type: domain.DiscountPercent, Amount: decimalOf("120")}},
		},
		{
			name:    "unknown type",
			coupons: []domain.Coupon{{Code: "X", Type: "bogus", Amount: decimalOf("5")}},
		},
		{
			name: "duplicate code",
			coupons: []domain.Coupon{
				{Code: "dup", Type: domain.DiscountPercent, Amount: decimalOf("5")},
				{Code: "DUP", Type: domain.DiscountPercent, Amount: decimalOf("5")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.NewMemoryStore(nil, tt.plans, tt.coupons)
			assert.Error(t, err)
		})
	}
}

func TestMemoryStore_GetCoupon_CaseInsensitive(t *testing.T) {
	store := catalog.NewSeededMemoryStore()

	coupon, err := store.GetCoupon(context.Background(), "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", coupon.Code)

	_, err = store.GetCoupon(context.Background(), "nope")
	assert.ErrorIs(t, err, catalog.ErrCouponNotFound)
}

func TestMemoryStore_IncrementCouponUses_Concurrent(t *testing.T) {
	store := catalog.NewSeededMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.IncrementCouponUses(ctx, "SAVE20")
		}()
	}
	wg.Wait()

	coupon, err := store.GetCoupon(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 50, coupon.Uses)
}

func TestMemoryStore_IncrementCouponUses_StopsAtLimit(t *testing.T) {
	store := catalog.NewSeededMemoryStore()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(store.IncrementCouponUses(ctx, "SAVE20"), catalog.ErrCouponUsageLimitReached) {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	coupon, err := store.GetCoupon(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 100, coupon.Uses)
	assert.Equal(t, 20, rejected)

	require.NoError(t, store.DecrementCouponUses(ctx, "save20"))
	require.NoError(t, store.IncrementCouponUses(ctx, "SAVE20"))
	assert.ErrorIs(t, store.IncrementCouponUses(ctx, "SAVE20"), catalog.ErrCouponUsageLimitReached)
}

func TestMemoryStore_DecrementCouponUses(t *testing.T) {
	store := catalog.NewSeededMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.DecrementCouponUses(ctx, "WELCOME10"))
	coupon, err := store.GetCoupon(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Zero(t, coupon.Uses)

	assert.ErrorIs(t, store.DecrementCouponUses(ctx, "NOPE"), catalog.ErrCouponNotFound)
}
