package activation

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/types"
)

var ErrNoPlanCode = errors.New("activation: plan has no provider plan code")

// Link creates the processor-side subscription for an activated one and
// records the returned code. The caller must hold the activation lock. An
// already linked subscription, or one scheduled to cancel at period end, is
// returned unchanged so the processor never bills another cycle.
func (s *Service) Link(ctx context.Context, subscriptionID, authorization, customerCode string, source types.ActivationSource) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.Linked() || sub.CancelAtPeriodEnd {
		return sub, nil
	}

	proc, err := s.processors.Get(sub.Provider)
	if err != nil {
		return nil, err
	}
	plan := sub.Plan
	if plan == nil {
		if plan, err = s.store.GetPlan(ctx, sub.PlanID); err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
	}
	if plan.ProviderPlanCode == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPlanCode, plan.ID)
	}
	if customerCode == "" {
		customerCode = lo.FromPtr(sub.ProviderCustomerID)
	}
	if customerCode == "" {
		// Paystack accepts the customer's email in place of a code.
		user, err := s.store.GetUser(ctx, sub.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if user != nil {
			customerCode = user.Email
		}
	}

	// The call must finish well inside the activation lease.
	callCtx, cancel := context.WithTimeout(ctx, s.linkBudget)
	code, err := proc.CreateSubscription(callCtx, processor.SubscriptionRequest{
		CustomerCode:  customerCode,
		PlanCode:      plan.ProviderPlanCode,
		Authorization: authorization,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create provider subscription: %w", err)
	}

	var (
		linked *models.Subscription
		wrote  bool
	)
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		cur, err := tx.GetSubscriptionForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if cur.Linked() {
			linked = cur
			return nil
		}
		cur.ProviderSubscriptionID = lo.ToPtr(code)
		if cur.ProviderCustomerID == nil && customerCode != "" {
			cur.ProviderCustomerID = lo.ToPtr(customerCode)
		}
		if err := tx.UpdateSubscription(ctx, cur); err != nil {
			return err
		}
		linked, wrote = cur, true
		return tx.AppendHistory(ctx, &models.SubscriptionHistory{
			SubscriptionID: cur.ID,
			Action:         types.HistoryActionProviderLinked,
			NewValue:       code,
			Reason:         source.Describe(),
			Details:        datatypes.JSONMap{"source": string(source), "plan_code": plan.ProviderPlanCode},
			CreatedAt:      s.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist provider subscription %s: %w", code, err)
	}
	if !wrote {
		return linked, nil
	}

	s.audit.Record(ctx, audit.Entry{
		UserID:     linked.UserID,
		Action:     audit.ActionSubscriptionLinked,
		Resource:   "subscription",
		ResourceID: linked.ID,
		Details:    map[string]any{"provider_subscription_id": code, "source": string(source)},
	})
	return linked, nil
}
