package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type LineAddOn struct {
	ID      string          `json:"id" validate:"required"`
	Title   string          `json:"title"`
	Price   decimal.Decimal `json:"price"`
	Enabled bool            `json:"enabled"`
}

// CartLineItem is a configured plan frozen into a cart. BasePrice is the flat
// per-interval component and is zero for items priced purely per unit.
type CartLineItem struct {
	ID           string          `json:"id" validate:"required"`
	PlanID       string          `json:"plan_id"`
	Title        string          `json:"title" validate:"required"`
	Subtitle     string          `json:"subtitle"`
	Interval     BillingInterval `json:"interval,omitempty" validate:"omitempty,oneof=monthly annual"`
	BasePrice    decimal.Decimal `json:"base_price"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Seats        int             `json:"seats"`
	Quantity     int             `json:"quantity"`
	AddOns       []LineAddOn     `json:"add_ons" validate:"dive"`
}

// ItemPatch carries a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Quantity *int            `json:"quantity,omitempty"`
	Seats    *int            `json:"seats,omitempty"`
	AddOns   map[string]bool `json:"add_ons,omitempty"`
}

// NewLineItem validates an externally built item, clamping seats and quantity.
func NewLineItem(item CartLineItem) (CartLineItem, []Adjustment, error) {
	var adj []Adjustment
	item.Seats, adj = clampMin1("seats", item.Seats, adj)
	item.Quantity, adj = clampMin1("quantity", item.Quantity, adj)
	if err := validate.Struct(item); err != nil {
		return CartLineItem{}, nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := nonNegative("base_price", item.BasePrice); err != nil {
		return CartLineItem{}, nil, err
	}
	if err := nonNegative("price_per_unit", item.PricePerUnit); err != nil {
		return CartLineItem{}, nil, err
	}
	for _, a := range item.AddOns {
		if err := nonNegative("add_on "+a.ID+" price", a.Price); err != nil {
			return CartLineItem{}, nil, err
		}
	}
	item.AddOns = append([]LineAddOn(nil), item.AddOns...)
	return item, adj, nil
}

// FreezeLineItem snapshots a plan configuration into a cart line item. Every
// plan add-on is carried so it can be toggled later; only selected ones are
// enabled. The item's Total equals the subtotal of the config's breakdown.
func FreezeLineItem(id string, plan Plan, cfg PlanConfig) (CartLineItem, error) {
	selected := make(map[string]bool, len(cfg.AddOnIDs))
	for _, a := range cfg.AddOnIDs {
		selected[a] = true
	}
	addOns := make([]LineAddOn, 0, len(plan.AddOns))
	for _, a := range plan.AddOns {
		addOns = append(addOns, LineAddOn{ID: a.ID, Title: a.Title, Price: a.Price, Enabled: selected[a.ID]})
	}
	perUnit, _ := plan.SeatPrice(cfg.Interval)

	item, _, err := NewLineItem(CartLineItem{
		ID:           id,
		PlanID:       plan.ID,
		Title:        plan.Title,
		Subtitle:     plan.Description,
		Interval:     cfg.Interval,
		BasePrice:    plan.BasePrice(cfg.Interval),
		PricePerUnit: perUnit,
		Seats:        cfg.Seats,
		Quantity:     cfg.Quantity,
		AddOns:       addOns,
	})
	return item, err
}

func (i CartLineItem) AddOnsCost() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range i.AddOns {
		if a.Enabled {
			sum = sum.Add(a.Price)
		}
	}
	return sum
}

func (i CartLineItem) Total() decimal.Decimal {
	return ItemTotal(i.BasePrice, i.PricePerUnit, i.Seats, i.AddOnsCost(), i.Quantity)
}

// Apply merges a patch and reports whether any field took a new value.
// Add-on ids the item does not carry are ignored.
func (i *CartLineItem) Apply(p ItemPatch) ([]Adjustment, bool) {
	var adj []Adjustment
	changed := false
	if p.Quantity != nil {
		var q int
		q, adj = clampMin1("quantity", *p.Quantity, adj)
		changed = changed || q != i.Quantity
		i.Quantity = q
	}
	if p.Seats != nil {
		var seats int
		seats, adj = clampMin1("seats", *p.Seats, adj)
		changed = changed || seats != i.Seats
		i.Seats = seats
	}
	for k := range i.AddOns {
		if enabled, ok := p.AddOns[i.AddOns[k].ID]; ok && enabled != i.AddOns[k].Enabled {
			i.AddOns[k].Enabled = enabled
			changed = true
		}
	}
	return adj, changed
}

func (i CartLineItem) clone() CartLineItem {
	i.AddOns = append([]LineAddOn(nil), i.AddOns...)
	return i
}
