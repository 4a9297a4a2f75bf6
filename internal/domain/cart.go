package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the stored part of the cart lifecycle. Empty, Populated and
// CouponApplied are derived from the contents, see State.
type Phase string

const (
	PhaseActive      Phase = "active"
	PhaseCheckingOut Phase = "checking_out"
	PhaseCleared     Phase = "cleared"
)

type State string

const (
	StateEmpty         State = "EMPTY"
	StatePopulated     State = "POPULATED"
	StateCouponApplied State = "COUPON_APPLIED"
	StateCheckingOut   State = "CHECKING_OUT"
	StateCleared       State = "CLEARED"
)

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) && t.Discount.Equal(o.Discount) &&
		t.Tax.Equal(o.Tax) && t.Total.Equal(o.Total)
}

// Cart is the aggregate for one buyer session. Version is bumped on every
// committed mutation and is the generation used to drop stale results.
type Cart struct {
	ID         string          `json:"id"`
	Items      []CartLineItem  `json:"items"`
	Coupon     *Coupon         `json:"coupon,omitempty"`
	TaxPercent decimal.Decimal `json:"tax_percent"`
	Currency   string          `json:"currency"`
	Phase      Phase           `json:"phase"`
	Version    uint64          `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewCart(id string, taxPercent decimal.Decimal, currency string, now time.Time) *Cart {
	return &Cart{
		ID:         id,
		TaxPercent: taxPercent,
		Currency:   currency,
		Phase:      PhaseActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *Cart) State() State {
	switch {
	case c.Phase == PhaseCheckingOut:
		return StateCheckingOut
	case len(c.Items) == 0 && c.Phase == PhaseCleared:
		return StateCleared
	case len(c.Items) == 0:
		return StateEmpty
	case c.Coupon != nil:
		return StateCouponApplied
	default:
		return StatePopulated
	}
}

// Totals is recomputed from the items and coupon on every call.
func (c *Cart) Totals() Totals {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.Total())
	}
	discount := decimal.Zero
	if c.Coupon != nil {
		discount = PercentOf(subtotal, c.Coupon.Amount)
	}
	taxable := subtotal.Sub(discount)
	tax := PercentOf(taxable, c.TaxPercent)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}

func (c *Cart) View() TotalsView {
	return TotalsView{Totals: c.Totals(), Version: c.Version}
}

func (c *Cart) Item(id string) (CartLineItem, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return CartLineItem{}, false
	}
	return c.Items[i], true
}

func (c *Cart) indexOf(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) ensureMutable() error {
	if c.Phase == PhaseCheckingOut {
		return ErrCheckoutInProgress
	}
	return nil
}

// AddItem appends the item. It reports false without changing the cart when an
// item with the same id is already present, so retried adds cannot duplicate.
func (c *Cart) AddItem(item CartLineItem) (bool, error) {
	if err := c.ensureMutable(); err != nil {
		return false, err
	}
	if c.indexOf(item.ID) >= 0 {
		return false, nil
	}
	c.Items = append(c.Items, item.clone())
	c.Phase = PhaseActive
	return true, nil
}

// UpdateItem patches the item with the given id. changed is false when the
// patch leaves every field as it was.
func (c *Cart) UpdateItem(id string, patch ItemPatch) (adj []Adjustment, changed bool, err error) {
	if err := c.ensureMutable(); err != nil {
		return nil, false, err
	}
	i := c.indexOf(id)
	if i < 0 {
		return nil, false, ErrItemNotFound
	}
	adj, changed = c.Items[i].Apply(patch)
	return adj, changed, nil
}

func (c *Cart) RemoveItem(id string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	i := c.indexOf(id)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i:i], c.Items[i+1:]...)
	return nil
}

// ApplyCoupon replaces any active coupon. Cart coupons are percent only.
func (c *Cart) ApplyCoupon(coupon Coupon) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if coupon.Type != DiscountPercent {
		return ErrCouponNotApplicable
	}
	c.Coupon = &coupon
	return nil
}

func (c *Cart) RemoveCoupon() error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	c.Coupon = nil
	return nil
}

func (c *Cart) BeginCheckout() error {
	if c.Phase == PhaseCheckingOut {
		return ErrCheckoutInProgress
	}
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}
	c.Phase = PhaseCheckingOut
	return nil
}

// AbortCheckout returns a cart whose order could not be created to Active.
func (c *Cart) AbortCheckout() error {
	if c.Phase != PhaseCheckingOut {
		return ErrIllegalTransition
	}
	c.Phase = PhaseActive
	return nil
}

// CompleteCheckout empties the cart; it is then equivalent to a fresh cart.
func (c *Cart) CompleteCheckout() error {
	if c.Phase != PhaseCheckingOut {
		return ErrIllegalTransition
	}
	c.Items = nil
	c.Coupon = nil
	c.Phase = PhaseCleared
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make([]CartLineItem, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item.clone()
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		out.Coupon = &coupon
	}
	return &out
}
