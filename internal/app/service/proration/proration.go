// Package proration computes the credit and charge for a plan change in the
// middle of a billing period. It has no side effects.
package proration

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/paysettle/pkg/money"
)

const day = 24 * time.Hour

var ErrInvalidPeriod = errors.New("proration: period end must be after period start")

type Result struct {
	TotalDays     int             `json:"total_days"`
	RemainingDays int             `json:"remaining_days"`
	OldDailyRate  decimal.Decimal `json:"old_daily_rate"`
	NewDailyRate  decimal.Decimal `json:"new_daily_rate"`
	OldCredit     decimal.Decimal `json:"old_credit"`
	NewCharge     decimal.Decimal `json:"new_charge"`
	// Amount is positive when the customer owes money and negative for a credit.
	Amount decimal.Decimal `json:"amount"`
}

// Calculate prorates a change from oldPrice to newPrice at changeDate. A zero
// changeDate means now. Day counts are rounded up; every monetary output is
// rounded to two decimal places from unrounded intermediates.
func Calculate(oldPrice, newPrice decimal.Decimal, periodStart, periodEnd, changeDate time.Time) (Result, error) {
	if changeDate.IsZero() {
		changeDate = time.Now()
	}
	total := ceilDays(periodEnd.Sub(periodStart))
	if total <= 0 {
		return Result{}, ErrInvalidPeriod
	}
	remaining := max(0, ceilDays(periodEnd.Sub(changeDate)))

	days := decimal.NewFromInt(int64(total))
	left := decimal.NewFromInt(int64(remaining))
	oldRate := oldPrice.Div(days)
	newRate := newPrice.Div(days)
	credit := oldRate.Mul(left)
	charge := newRate.Mul(left)

	return Result{
		TotalDays:     total,
		RemainingDays: remaining,
		OldDailyRate:  money.Round2(oldRate),
		NewDailyRate:  money.Round2(newRate),
		OldCredit:     money.Round2(credit),
		NewCharge:     money.Round2(charge),
		Amount:        money.Round2(charge.Sub(credit)),
	}, nil
}

// ceilDays rounds a duration up to whole days. Negative durations round
// toward zero, as math.Ceil does.
func ceilDays(d time.Duration) int {
	n := int(d / day)
	if d > 0 && d%day != 0 {
		n++
	}
	return n
}
