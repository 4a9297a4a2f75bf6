package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fjod/plancart/internal/config"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/fjod/plancart/pkg/logger"
	"github.com/spf13/cobra"
)

type quoteOptions struct {
	planID   string
	interval string
	seats    int
	addOns   []string
	quantity int
	coupon   string
	asJSON   bool
}

var quoteOpts quoteOptions

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print the price breakdown for a plan configuration",
	Example: `  plancart quote --plan team --seats 3 --coupon WELCOME10
  plancart quote --plan vault --interval annual --add-on sso --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runQuote(cmd.Context(), cfg, quoteOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := quoteCmd.Flags()
	f.StringVar(&quoteOpts.planID, "plan", "", "plan id")
	f.StringVar(&quoteOpts.interval, "interval", string(domain.IntervalMonthly), "billing interval: monthly or annual")
	f.IntVar(&quoteOpts.seats, "seats", 1, "number of seats")
	f.StringSliceVar(&quoteOpts.addOns, "add-on", nil, "add-on id, repeatable")
	f.IntVar(&quoteOpts.quantity, "quantity", 1, "quantity")
	f.StringVar(&quoteOpts.coupon, "coupon", "", "coupon code")
	f.BoolVar(&quoteOpts.asJSON, "json", false, "print JSON instead of a table")
	_ = quoteCmd.MarkFlagRequired("plan")
}

func runQuote(ctx context.Context, cfg *config.Config, opts quoteOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a := newApp(logger.New(logger.Config{Level: "error", Format: "console"}))
	defer a.close(ctx)
	if err := newCatalog(cfg, a); err != nil {
		return err
	}

	q, err := a.calculator.Quote(ctx, domain.PlanConfig{
		PlanID:   opts.planID,
		Interval: domain.BillingInterval(opts.interval),
		Seats:    opts.seats,
		AddOnIDs: opts.addOns,
		Quantity: opts.quantity,
	}, opts.coupon)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	return printQuote(w, q)
}

func printQuote(w io.Writer, q *pricing.Quote) error {
	b := q.Breakdown
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s (%s)\t\n", q.Plan.Title, q.Config.Interval)
	rows := []struct {
		label string
		value fmt.Stringer
	}{
		{"Base price", b.BasePrice},
		{fmt.Sprintf("Seats x%d", q.Config.Seats), b.SeatsCost},
		{"Add-ons", b.AddOnsCost},
		{"Subtotal", b.Subtotal},
		{"Discount", b.DiscountAmount.Neg()},
		{"Tax", b.TaxAmount},
		{"Total", b.Total},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s %s\t\n", r.label, r.value.String(), b.Currency)
	}
	for _, adj := range q.Adjustments {
		fmt.Fprintf(tw, "note: %s\t\n", adj)
	}
	if q.CouponError != "" {
		fmt.Fprintf(tw, "coupon not applied: %s\t\n", q.CouponError)
	}
	return tw.Flush()
}
