package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fatflowers/paysettle/internal/app/service/proration"
	"github.com/fatflowers/paysettle/internal/app/service/reconcile"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
)

func newReconcileCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Link active subscriptions that were never created at the processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc *reconcile.Service
			return withEngine(cmd.Context(), func(ctx context.Context) error {
				report, err := svc.Run(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}, &svc)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum subscriptions to scan")
	return cmd
}

func newLinkCmd() *cobra.Command {
	var unmatchedID, subscriptionID, operatorID string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Attach a queued unmatched payment to a subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc *settlement.Service
			return withEngine(cmd.Context(), func(ctx context.Context) error {
				res, err := svc.Link(ctx, unmatchedID, subscriptionID, operatorID)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("link refused: %s", res.Reason)
				}
				return nil
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&unmatchedID, "id", "", "unmatched payment id")
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "target subscription id")
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator performing the link")
	for _, name := range []string{"id", "subscription", "operator"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newProrationCmd() *cobra.Command {
	var oldPrice, newPrice, start, end, change string
	cmd := &cobra.Command{
		Use:     "proration",
		Short:   "Compute the prorated amount for a plan change",
		Example: "  paysettlectl proration --old 50 --new 100 --start 2026-01-01 --end 2026-01-31 --change 2026-01-16",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := parseProrationArgs(oldPrice, newPrice, start, end, change)
			if err != nil {
				return err
			}
			res, err := proration.Calculate(in.oldPrice, in.newPrice, in.start, in.end, in.change)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&oldPrice, "old", "", "current plan price")
	cmd.Flags().StringVar(&newPrice, "new", "", "new plan price")
	cmd.Flags().StringVar(&start, "start", "", "billing period start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "billing period end (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&change, "change", "", "change date, defaults to now")
	for _, name := range []string{"old", "new", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

type prorationArgs struct {
	oldPrice, newPrice decimal.Decimal
	start, end, change time.Time
}

func parseProrationArgs(oldPrice, newPrice, start, end, change string) (prorationArgs, error) {
	var (
		in  prorationArgs
		err error
	)
	if in.oldPrice, err = decimal.NewFromString(oldPrice); err != nil {
		return in, fmt.Errorf("invalid --old: %w", err)
	}
	if in.newPrice, err = decimal.NewFromString(newPrice); err != nil {
		return in, fmt.Errorf("invalid --new: %w", err)
	}
	if in.start, err = parseDate(start); err != nil {
		return in, fmt.Errorf("invalid --start: %w", err)
	}
	if in.end, err = parseDate(end); err != nil {
		return in, fmt.Errorf("invalid --end: %w", err)
	}
	if change != "" {
		if in.change, err = parseDate(change); err != nil {
			return in, fmt.Errorf("invalid --change: %w", err)
		}
	}
	return in, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
