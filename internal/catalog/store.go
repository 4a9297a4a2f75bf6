package catalog

import (
	"context"
	"errors"

	"github.com/fjod/plancart/internal/domain"
)

var (
	ErrPlanNotFound            = errors.New("plan not found")
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Store is the read-only catalog collaborator. Coupon codes match case-insensitively.
type Store interface {
	ListPlans(ctx context.Context, filter domain.PlanFilter) ([]domain.Plan, error)
	GetPlan(ctx context.Context, id string) (domain.Plan, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCoupon(ctx context.Context, code string) (domain.Coupon, error)
	// IncrementCouponUses claims one redemption. It fails with
	// ErrCouponUsageLimitReached instead of going past MaxUses.
	IncrementCouponUses(ctx context.Context, code string) error
	// DecrementCouponUses gives back a claimed redemption. Uses never drop below zero.
	DecrementCouponUses(ctx context.Context, code string) error
	Close() error
}
