package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/plancart/internal/cache"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/metrics"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/fjod/plancart/internal/publisher"
	"github.com/fjod/plancart/internal/repository"
	"github.com/fjod/plancart/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Consumers define these interfaces, not the implementations.

type Quoter interface {
	Quote(ctx context.Context, cfg domain.PlanConfig, couponCode string) (*pricing.Quote, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

// CouponUsage claims and gives back coupon redemptions.
type CouponUsage interface {
	IncrementCouponUses(ctx context.Context, code string) error
	DecrementCouponUses(ctx context.Context, code string) error
}

type Dependencies struct {
	Repo        repository.CartRepository
	Cache       cache.CartCache
	Quoter      Quoter
	Coupons     CouponValidator
	CouponUsage CouponUsage
	Orders      orders.Store
	Idempotency cache.IdempotencyStore
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger

	// Publisher is for order stores without an outbox. Leave nil when the
	// store's outbox is relayed by publisher.OutboxPoller.
	Publisher publisher.Publisher
}

type Options struct {
	TaxPercent decimal.Decimal
	Currency   string
	// MaxRetries bounds re-applying a mutation after a version conflict.
	MaxRetries int
	Now        func() time.Time
}

type CartService struct {
	Dependencies
	opts  Options
	sfg   singleflight.Group // Prevents cache stampede
	locks sync.Map           // cart id -> *sync.Mutex
}

func NewCartService(deps Dependencies, opts Options) *CartService {
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Idempotency == nil {
		deps.Idempotency = cache.NewMemoryIdempotencyStore()
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.Nop{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	deps.Logger = deps.Logger.With().Str("component", "cart_service").Logger()
	return &CartService{Dependencies: deps, opts: opts}
}

func (s *CartService) CreateCart(ctx context.Context) (*domain.Cart, error) {
	cart := domain.NewCart(uuid.NewString(), s.opts.TaxPercent, s.opts.Currency, s.opts.Now().UTC())
	if err := s.Repo.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	s.fillCache(ctx, cart)
	logger.FromContext(ctx, s.Logger).Info().Str("cart_id", cart.ID).Msg("Cart created")
	return cart, nil
}

// GetCart reads through the cache. Concurrent reads of one cart share a
// single backend lookup; every caller gets its own copy.
func (s *CartService) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {
		cart, err := s.Cache.Get(ctx, cartID)
		if err == nil {
			s.Metrics.CacheHits.Inc()
			return cart, nil
		}
		s.Metrics.CacheMisses.Inc()
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("Cache get failed")
		}

		cart, err = s.Repo.GetCart(ctx, cartID)
		if err != nil {
			return nil, err
		}
		s.fillCache(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart).Clone(), nil
}

// GetTotals recomputes the committed totals of the cart.
func (s *CartService) GetTotals(ctx context.Context, cartID string) (domain.TotalsView, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return domain.TotalsView{}, err
	}
	return cart.View(), nil
}

// AddItem adds a prebuilt line item. An item whose id is already in the cart
// is not added again. An empty id is replaced by a generated one.
func (s *CartService) AddItem(ctx context.Context, cartID string, item domain.CartLineItem) (*domain.Cart, []domain.Adjustment, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item, adj, err := domain.NewLineItem(item)
	if err != nil {
		return nil, nil, err
	}
	s.reportAdjustments(ctx, cartID, adj)

	cart, err := s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		return c.AddItem(item)
	})
	return cart, adj, err
}

// AddConfiguredPlan prices a plan configuration and freezes it into the cart.
func (s *CartService) AddConfiguredPlan(ctx context.Context, cartID, itemID string, cfg domain.PlanConfig) (*domain.Cart, *pricing.Quote, error) {
	q, err := s.Quoter.Quote(ctx, cfg, "")
	if err != nil {
		return nil, nil, err
	}
	if itemID == "" {
		itemID = uuid.NewString()
	}
	item, err := domain.FreezeLineItem(itemID, q.Plan, q.Config)
	if err != nil {
		return nil, nil, err
	}

	cart, err := s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		return c.AddItem(item)
	})
	if err != nil {
		return nil, nil, err
	}
	return cart, q, nil
}

func (s *CartService) UpdateItem(ctx context.Context, cartID, itemID string, patch domain.ItemPatch) (*domain.Cart, []domain.Adjustment, error) {
	var adj []domain.Adjustment
	cart, err := s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		var changed bool
		var err error
		adj, changed, err = c.UpdateItem(itemID, patch)
		return changed, err
	})
	if err != nil {
		return nil, nil, err
	}
	s.reportAdjustments(ctx, cartID, adj)
	return cart, adj, nil
}

// PreviewUpdate computes the totals an update would produce without
// committing it. The result is speculative and stamped with the version the
// commit would get, so a committed view of that version supersedes it.
func (s *CartService) PreviewUpdate(ctx context.Context, cartID, itemID string, patch domain.ItemPatch) (domain.TotalsView, []domain.Adjustment, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return domain.TotalsView{}, nil, err
	}
	adj, changed, err := cart.UpdateItem(itemID, patch)
	if err != nil {
		return domain.TotalsView{}, nil, err
	}
	view := cart.View()
	if !changed {
		// Nothing would be committed, so the current view is already final.
		return view, adj, nil
	}
	view.Version = cart.Version + 1
	view.Speculative = true
	return view, adj, nil
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		return true, c.RemoveItem(itemID)
	})
}

// ApplyCoupon validates the code and replaces any applied coupon. Coupon
// failures leave the cart untouched.
func (s *CartService) ApplyCoupon(ctx context.Context, cartID, code string) (*domain.Cart, error) {
	coupon, err := s.Coupons.Validate(ctx, code, s.opts.Now())
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		return true, c.ApplyCoupon(coupon)
	})
}

func (s *CartService) RemoveCoupon(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		had := c.Coupon != nil
		return had, c.RemoveCoupon()
	})
}

func (s *CartService) DeleteCart(ctx context.Context, cartID string) error {
	mu := s.lockFor(cartID)
	mu.Lock()
	defer mu.Unlock()

	cart, err := s.Repo.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteCart(ctx, cartID); err != nil {
		return err
	}
	s.invalidate(ctx, cartID, cart.Version+1)
	s.locks.Delete(cartID)
	return nil
}

// mutate applies fn to the latest committed cart and saves it under the
// cart's lock. fn reports whether it changed anything; unchanged carts are
// not written. On a version conflict the cart is re-read and fn re-applied.
func (s *CartService) mutate(ctx context.Context, cartID string, fn func(*domain.Cart) (bool, error)) (*domain.Cart, error) {
	mu := s.lockFor(cartID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		cart, err := s.Repo.GetCart(ctx, cartID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(cart)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cart, nil
		}

		expected := cart.Version
		cart.Version++
		cart.UpdatedAt = s.opts.Now().UTC()

		err = s.Repo.SaveCart(ctx, cart, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.Metrics.VersionConflicts.Inc()
			s.Logger.Debug().Str("cart_id", cartID).Int("attempt", attempt+1).Msg("Version conflict, retrying")
			if err := sleepCtx(ctx, time.Duration(attempt+1)*10*time.Millisecond); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}

		s.Metrics.CartRecomputes.Inc()
		s.invalidate(ctx, cartID, cart.Version)
		s.fillCache(ctx, cart)
		return cart, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, repository.ErrVersionConflict)
}

func (s *CartService) lockFor(cartID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(cartID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// fillCache is best effort. A stale write means a newer version was
// committed meanwhile and is expected under concurrency.
func (s *CartService) fillCache(ctx context.Context, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	err := s.Cache.Set(ctx, cart)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStaleWrite):
		s.Metrics.StaleWritesDropped.Inc()
	default:
		s.Logger.Warn().Err(err).Str("cart_id", cart.ID).Msg("Cache set failed")
	}
}

func (s *CartService) invalidate(ctx context.Context, cartID string, version uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err := s.Cache.Invalidate(ctx, cartID, version); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("Cache invalidate failed")
	}
}

func (s *CartService) reportAdjustments(ctx context.Context, cartID string, adj []domain.Adjustment) {
	for _, a := range adj {
		s.Metrics.RecordClamp(a.Field)
		logger.FromContext(ctx, s.Logger).Warn().
			Str("cart_id", cartID).
			Str("field", a.Field).
			Int("requested", a.Requested).
			Int("applied", a.Applied).
			Msg("Clamped line item value")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
