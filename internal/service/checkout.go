package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/publisher"
	"github.com/fjod/plancart/internal/repository"
	"github.com/fjod/plancart/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Checkout turns the cart into an order and clears it. The idempotency key
// makes retries safe: a key that already produced an order for this cart
// returns that order with replayed=true, and a key whose checkout is still
// running fails with domain.ErrCheckoutInProgress. Keys are scoped to the
// cart, so reusing one on another cart starts a new checkout.
func (s *CartService) Checkout(ctx context.Context, cartID, idempotencyKey string) (order *orders.Order, replayed bool, err error) {
	log := logger.FromContext(ctx, s.Logger).With().Str("cart_id", cartID).Logger()
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	key := checkoutKey(cartID, idempotencyKey)

	reserved, existingID, err := s.Idempotency.Reserve(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		if existingID == "" {
			return nil, false, domain.ErrCheckoutInProgress
		}
		log.Info().Str("idempotency_key", idempotencyKey).Str("order_id", existingID).Msg("Duplicate checkout request")
		o, err := s.GetOrder(ctx, existingID)
		if err != nil {
			return nil, false, err
		}
		// A previous attempt may have created the order but failed to clear the cart.
		s.clearCart(ctx, cartID, o.CartVersion, log)
		s.Metrics.RecordCheckout("replayed")
		return o, true, nil
	}

	defer func() {
		if err != nil {
			s.Metrics.RecordCheckout("failed")
			if relErr := s.Idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
				log.Warn().Err(relErr).Msg("Failed to release idempotency key")
			}
		}
	}()

	cart, err := s.mutate(ctx, cartID, func(c *domain.Cart) (bool, error) {
		if err := c.BeginCheckout(); err != nil {
			return false, err
		}
		if err := s.checkCoupon(ctx, c); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}

	claimed, err := s.claimCoupon(ctx, cart)
	if err != nil {
		s.reopenCart(ctx, cartID, log)
		return nil, false, err
	}

	order = orders.NewOrder(key, orders.NewSnapshot(cart), s.opts.Now().UTC())
	err = s.Orders.CreateOrder(ctx, order)
	if errors.Is(err, orders.ErrDuplicateCheckout) {
		order, err = s.Orders.GetOrderByIdempotencyKey(ctx, key)
		replayed = true
	}
	if claimed && (replayed || err != nil) {
		s.releaseCoupon(ctx, cart.Coupon.Code, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("Order creation failed, reopening cart")
		s.reopenCart(ctx, cartID, log)
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	if err := s.Idempotency.Complete(ctx, key, order.ID.String()); err != nil {
		log.Warn().Err(err).Msg("Failed to record idempotency key")
	}
	if !replayed {
		s.afterOrderCreated(ctx, order)
	}
	s.clearCart(ctx, cartID, cart.Version, log)

	if replayed {
		s.Metrics.RecordCheckout("replayed")
	} else {
		s.Metrics.RecordCheckout("created")
	}
	log.Info().Str("order_id", order.ID.String()).Str("total", order.Totals.Total.String()).Msg("Checkout completed")
	return order, replayed, nil
}

func checkoutKey(cartID, idempotencyKey string) string {
	return cartID + ":" + idempotencyKey
}

// checkCoupon re-validates the applied coupon, which may have expired or run
// out of uses since it was applied.
func (s *CartService) checkCoupon(ctx context.Context, c *domain.Cart) error {
	if c.Coupon == nil || s.Coupons == nil {
		return nil
	}
	_, err := s.Coupons.Validate(ctx, c.Coupon.Code, s.opts.Now())
	return err
}

// claimCoupon takes one redemption of the cart's coupon before the order is
// written. It reports whether a use was taken.
func (s *CartService) claimCoupon(ctx context.Context, c *domain.Cart) (bool, error) {
	if c.Coupon == nil || s.CouponUsage == nil {
		return false, nil
	}
	if err := s.CouponUsage.IncrementCouponUses(ctx, c.Coupon.Code); err != nil {
		return false, fmt.Errorf("claim coupon %s: %w", c.Coupon.Code, err)
	}
	return true, nil
}

func (s *CartService) releaseCoupon(ctx context.Context, code string, log zerolog.Logger) {
	if err := s.CouponUsage.DecrementCouponUses(context.WithoutCancel(ctx), code); err != nil {
		log.Warn().Err(err).Str("coupon", code).Msg("Failed to release coupon use")
	}
}

func (s *CartService) reopenCart(ctx context.Context, cartID string, log zerolog.Logger) {
	if _, err := s.mutate(context.WithoutCancel(ctx), cartID, func(c *domain.Cart) (bool, error) {
		return true, c.AbortCheckout()
	}); err != nil {
		log.Error().Err(err).Msg("Failed to reopen cart")
	}
}

// clearCart completes the checkout that left the cart at version. A cart that
// moved on since, or was already cleared, is left alone.
func (s *CartService) clearCart(ctx context.Context, cartID string, version uint64, log zerolog.Logger) {
	_, err := s.mutate(context.WithoutCancel(ctx), cartID, func(c *domain.Cart) (bool, error) {
		if c.Phase != domain.PhaseCheckingOut || c.Version != version {
			return false, nil
		}
		return true, c.CompleteCheckout()
	})
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		// The order exists; a replay with the same key retries the clear.
		log.Error().Err(err).Uint64("version", version).Msg("Failed to clear cart")
	}
}

// afterOrderCreated publishes the event. It may not fail the checkout once
// the order exists.
func (s *CartService) afterOrderCreated(ctx context.Context, order *orders.Order) {
	log := logger.FromContext(ctx, s.Logger).With().Str("order_id", order.ID.String()).Logger()

	if err := s.Publisher.PublishCheckoutCompleted(ctx, publisher.NewCheckoutCompleted(order)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish checkout event")
	}
}

func (s *CartService) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderID, orderID)
	}
	return s.Orders.GetOrder(ctx, id)
}
