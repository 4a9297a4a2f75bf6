package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fjod/plancart/internal/domain"
)

// MemoryStore keeps the catalog in maps guarded by a RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	plans      map[string]domain.Plan
	categories []domain.Category
	coupons    map[string]domain.Coupon // normalized code -> coupon
}

// NewMemoryStore validates every record up front and rejects the whole seed on
// the first invalid one.
func NewMemoryStore(categories []domain.Category, plans []domain.Plan, coupons []domain.Coupon) (*MemoryStore, error) {
	s := &MemoryStore{
		plans:      make(map[string]domain.Plan, len(plans)),
		categories: append([]domain.Category(nil), categories...),
		coupons:    make(map[string]domain.Coupon, len(coupons)),
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.ID, err)
		}
		s.plans[p.ID] = p
	}
	for _, c := range coupons {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("coupon %q: %w", c.Code, err)
		}
		key := domain.NormalizeCode(c.Code)
		if _, dup := s.coupons[key]; dup {
			return nil, fmt.Errorf("coupon %q: duplicate code", c.Code)
		}
		s.coupons[key] = c
	}
	return s, nil
}

// NewSeededMemoryStore returns a store holding the default catalog.
func NewSeededMemoryStore() *MemoryStore {
	s, err := NewMemoryStore(SeedCategories(), SeedPlans(), SeedCoupons())
	if err != nil {
		panic(fmt.Sprintf("invalid seed catalog: %v", err))
	}
	return s
}

func (s *MemoryStore) ListPlans(_ context.Context, filter domain.PlanFilter) ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	sortPlans(result)
	return result, nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return domain.Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListCategories(context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Category(nil), s.categories...), nil
}

func (s *MemoryStore) GetCoupon(_ context.Context, code string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[domain.NormalizeCode(code)]
	if !ok {
		return domain.Coupon{}, ErrCouponNotFound
	}
	return c, nil
}

func (s *MemoryStore) IncrementCouponUses(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeCode(code)
	c, ok := s.coupons[key]
	if !ok {
		return ErrCouponNotFound
	}
	if c.Exhausted() {
		return ErrCouponUsageLimitReached
	}
	c.Uses++
	s.coupons[key] = c
	return nil
}

func (s *MemoryStore) DecrementCouponUses(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeCode(code)
	c, ok := s.coupons[key]
	if !ok {
		return ErrCouponNotFound
	}
	if c.Uses > 0 {
		c.Uses--
		s.coupons[key] = c
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sortPlans orders popular plans first, then by id.
func sortPlans(plans []domain.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].Popular != plans[j].Popular {
			return plans[i].Popular
		}
		return plans[i].ID < plans[j].ID
	})
}
