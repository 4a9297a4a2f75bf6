package domain

import "errors"

var (
	ErrInvalidRecord       = errors.New("invalid record")
	ErrItemNotFound        = errors.New("item not found in cart")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutInProgress  = errors.New("cart is checking out")
	ErrCouponNotApplicable = errors.New("coupon cannot be applied to a cart")
	ErrIllegalTransition   = errors.New("illegal transition of cart phase")
)
