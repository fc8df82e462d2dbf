package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/money"
	"github.com/fatflowers/paysettle/pkg/types"
)

const (
	ReasonSubscriptionNotFound = "Subscription not found"
	ReasonAlreadyProcessed     = "Payment already processed for this subscription"
	ReasonRecentlyActivated    = "Subscription was activated moments ago"
	ReasonAmountMismatch       = "Payment amount differs from plan price by more than 5%"

	strictConfidence = 80
	strictTolerance  = 0.05
)

type ValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
	// Duplicate marks a redelivery of a payment this subscription already
	// holds. Callers treat it as success.
	Duplicate bool `json:"duplicate,omitempty"`
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}

type Validator struct {
	store  store.Store
	window time.Duration
	now    func() time.Time
	log    *zap.SugaredLogger
}

func NewValidator(st store.Store, cfg *config.Config, log *zap.SugaredLogger) *Validator {
	return &Validator{
		store:  st,
		window: cfg.Engine.RecentActivationWindow,
		now:    time.Now,
		log:    log,
	}
}

// Validate re-reads the subscription and checks, in order: it exists, the
// payment reference is not already recorded on it, it is still incomplete,
// it was not activated within the recent window, and for confident matches
// the amount is within 5% of the plan price.
func (v *Validator) Validate(ctx context.Context, match Match, c Correlation) (ValidationResult, error) {
	lg := logctx.FromCtx(ctx, v.log).With("subscription_id", match.SubscriptionID, "reference", c.Reference)

	sub, err := v.store.GetSubscription(ctx, match.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return invalid(ReasonSubscriptionNotFound), nil
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load subscription: %w", err)
	}

	payment, err := v.store.GetPaymentByRef(ctx, c.Reference)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return ValidationResult{}, fmt.Errorf("failed to load payment by reference: %w", err)
	case payment.SubscriptionID == sub.ID:
		lg.Infow("duplicate payment delivery")
		res := invalid(ReasonAlreadyProcessed)
		res.Duplicate = true
		return res, nil
	}

	if sub.Status != types.SubscriptionStatusIncomplete {
		return invalid(fmt.Sprintf("Subscription is not awaiting payment (status: %s)", sub.Status)), nil
	}

	recent, err := v.store.HasHistorySince(ctx, sub.ID, types.HistoryActionActivated, v.now().Add(-v.window))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to read subscription history: %w", err)
	}
	if recent {
		return invalid(ReasonRecentlyActivated), nil
	}

	if match.Confidence >= strictConfidence {
		plan := sub.Plan
		if plan == nil {
			plan, err = v.store.GetPlan(ctx, sub.PlanID)
			if err != nil {
				return ValidationResult{}, fmt.Errorf("failed to load plan: %w", err)
			}
		}
		if !money.WithinTolerance(money.ToMinor(plan.Price), c.Amount, strictTolerance) {
			lg.Infow("amount outside tolerance", "expected", money.ToMinor(plan.Price), "actual", c.Amount)
			return invalid(ReasonAmountMismatch), nil
		}
	}
	return ValidationResult{IsValid: true}, nil
}
