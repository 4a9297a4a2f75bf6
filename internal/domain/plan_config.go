package domain

import (
	"fmt"
	"sort"
)

// PlanConfig is the buyer's in-progress selection for one plan.
type PlanConfig struct {
	PlanID   string          `json:"plan_id" validate:"required"`
	Interval BillingInterval `json:"interval" validate:"oneof=monthly annual"`
	Seats    int             `json:"seats"`
	AddOnIDs []string        `json:"add_on_ids"`
	Quantity int             `json:"quantity"`
}

// Adjustment records a value that was clamped instead of rejected.
type Adjustment struct {
	Field     string `json:"field"`
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s clamped from %d to %d", a.Field, a.Requested, a.Applied)
}

func clampMin1(field string, v int, adj []Adjustment) (int, []Adjustment) {
	if v >= 1 {
		return v, adj
	}
	return 1, append(adj, Adjustment{Field: field, Requested: v, Applied: 1})
}

// NewPlanConfig builds a validated config. Seats and quantity below 1 are
// clamped to 1 and reported; duplicate add-on ids collapse into a set.
func NewPlanConfig(planID string, interval BillingInterval, seats int, addOnIDs []string, quantity int) (PlanConfig, []Adjustment, error) {
	if interval == "" {
		interval = IntervalMonthly
	}
	var adj []Adjustment
	seats, adj = clampMin1("seats", seats, adj)
	quantity, adj = clampMin1("quantity", quantity, adj)

	cfg := PlanConfig{
		PlanID:   planID,
		Interval: interval,
		Seats:    seats,
		AddOnIDs: dedupe(addOnIDs),
		Quantity: quantity,
	}
	if err := validate.Struct(cfg); err != nil {
		return PlanConfig{}, nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return cfg, adj, nil
}

// Normalized re-applies construction rules to a config that was decoded
// directly from a request.
func (c PlanConfig) Normalized() (PlanConfig, []Adjustment, error) {
	return NewPlanConfig(c.PlanID, c.Interval, c.Seats, c.AddOnIDs, c.Quantity)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
