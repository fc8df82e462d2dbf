// Package activation moves a subscription from incomplete to active once a
// payment has been attributed to it.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/idempotency"
	"github.com/fatflowers/paysettle/internal/platform/lock"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/metrics"
	"github.com/fatflowers/paysettle/pkg/money"
	"github.com/fatflowers/paysettle/pkg/types"
)

// LockKey is the per-subscription resource shared with cancellation.
func LockKey(subscriptionID string) string {
	return "subscription:activate:" + subscriptionID
}

func idempotencyKey(subscriptionID, reference string) string {
	return fmt.Sprintf("activate_subscription:%s:%s", subscriptionID, reference)
}

// PaymentData describes the settled payment. Amount is in minor units.
type PaymentData struct {
	Reference          string                `json:"reference"`
	Amount             int64                 `json:"amount"`
	Currency           string                `json:"currency"`
	Provider           types.PaymentProvider `json:"provider"`
	ProviderPaymentID  string                `json:"provider_payment_id,omitempty"`
	AuthorizationCode  string                `json:"-"`
	ProviderCustomerID string                `json:"provider_customer_id,omitempty"`
	PaidAt             time.Time             `json:"paid_at"`
}

type Request struct {
	SubscriptionID string
	Payment        PaymentData
	Source         types.ActivationSource
}

type Result struct {
	Success bool                          `json:"success"`
	Reason  types.ActivationFailureReason `json:"reason,omitempty"`
	// AlreadyActive is set when the subscription was active before this call.
	AlreadyActive bool                 `json:"already_active,omitempty"`
	Subscription  *models.Subscription `json:"subscription,omitempty"`
	Payment       *models.Payment      `json:"payment,omitempty"`
	// Replayed is set when the result came from the idempotency cache.
	Replayed bool `json:"-"`
}

func failed(reason types.ActivationFailureReason) *Result {
	return &Result{Reason: reason}
}

type Service struct {
	store       store.Store
	locker      lock.Locker
	guard       *idempotency.Guard
	processors  *processor.Registry
	audit       *audit.Service
	log         *zap.SugaredLogger
	lockTimeout time.Duration
	idemTTL     time.Duration
	linkBudget  time.Duration
	now         func() time.Time
}

func NewService(st store.Store, locker lock.Locker, guard *idempotency.Guard, processors *processor.Registry, auditSvc *audit.Service, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{
		store:       st,
		locker:      locker,
		guard:       guard,
		processors:  processors,
		audit:       auditSvc,
		log:         log,
		lockTimeout: cfg.Lock.AcquireTimeout,
		idemTTL:     cfg.Engine.IdempotencyTTL,
		linkBudget:  LinkBudget(cfg.Lock.LeaseTTL),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// LinkBudget is how long a processor-side link may take while the activation
// lease is held: half the lease, leaving the rest for the transaction and
// release.
func LinkBudget(leaseTTL time.Duration) time.Duration {
	return leaseTTL / 2
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Activate runs the activation transition for one payment. Expected business
// outcomes come back as a Result; an error means infrastructure failed and
// nothing was committed, so the caller can retry.
func (s *Service) Activate(ctx context.Context, req Request) (res *Result, err error) {
	if !req.Source.Valid() {
		return nil, fmt.Errorf("unknown activation source %q", req.Source)
	}
	if req.SubscriptionID == "" || req.Payment.Reference == "" {
		return nil, errors.New("subscription id and payment reference are required")
	}
	start := time.Now()
	lg := logctx.FromCtx(ctx, s.log).With("subscription_id", req.SubscriptionID, "reference", req.Payment.Reference, "source", req.Source)
	defer func() {
		outcome := outcomeLabel(res, err)
		metrics.IncOutcome("activate", outcome)
		metrics.ObserveProcess("activation", outcome, start)
	}()

	lease, ok, err := s.locker.Acquire(ctx, LockKey(req.SubscriptionID), s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire activation lock: %w", err)
	}
	if !ok {
		lg.Infow("activation lock busy")
		return failed(types.ActivationFailureLockTimeout), nil
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			lg.Warnw("failed to release activation lock", "err", rerr)
		}
	}()

	res, replayed, err := idempotency.Execute(ctx, s.guard, idempotencyKey(req.SubscriptionID, req.Payment.Reference), s.idemTTL,
		func(ctx context.Context) (*Result, error) { return s.activateLocked(ctx, req) },
		func(r *Result) bool { return r != nil && r.Success },
	)
	if err != nil {
		return nil, err
	}
	if replayed {
		res.Replayed = true
		lg.Infow("activation replayed from idempotency cache")
	}
	return res, nil
}

// activateLocked expects the activation lock to be held.
func (s *Service) activateLocked(ctx context.Context, req Request) (*Result, error) {
	lg := logctx.FromCtx(ctx, s.log).With("subscription_id", req.SubscriptionID, "reference", req.Payment.Reference)
	now := s.now()

	var (
		res        = &Result{}
		prevStatus types.SubscriptionStatus
	)
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		sub, err := tx.GetSubscriptionForUpdate(ctx, req.SubscriptionID)
		if errors.Is(err, store.ErrNotFound) {
			res = failed(types.ActivationFailureSubscriptionNotFound)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		prevStatus = sub.Status
		if !sub.Status.Activatable() {
			res = failed(types.ActivationFailureInvalidStatus)
			return nil
		}

		payment, conflict, err := s.settlePayment(ctx, tx, sub, req.Payment, now)
		if err != nil {
			return err
		}
		if conflict {
			res = failed(types.ActivationFailurePaymentConflict)
			return nil
		}

		if sub.Status == types.SubscriptionStatusIncomplete {
			end := now.AddDate(0, 1, 0)
			sub.Status = types.SubscriptionStatusActive
			sub.CurrentPeriodStart = lo.ToPtr(now)
			sub.CurrentPeriodEnd = lo.ToPtr(end)
			sub.NextBillingDate = lo.ToPtr(end)
			sub.CancelAtPeriodEnd = false
			sub.RetryCount = 0
			sub.GracePeriodEnd = nil
			sub.LastPaymentAttempt = lo.ToPtr(now)
			if err := tx.UpdateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("failed to update subscription: %w", err)
			}
			if err := tx.AppendHistory(ctx, &models.SubscriptionHistory{
				SubscriptionID: sub.ID,
				Action:         types.HistoryActionActivated,
				OldValue:       string(types.SubscriptionStatusIncomplete),
				NewValue:       string(types.SubscriptionStatusActive),
				Reason:         req.Source.Describe(),
				Details: datatypes.JSONMap{
					"source":     string(req.Source),
					"reference":  req.Payment.Reference,
					"payment_id": payment.ID,
				},
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to append history: %w", err)
			}
		} else {
			res.AlreadyActive = true
		}
		res.Success = true
		res.Subscription = sub
		res.Payment = payment
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate subscription %s: %w", req.SubscriptionID, err)
	}
	if !res.Success {
		lg.Infow("activation refused", "reason", res.Reason, "status", prevStatus)
		return res, nil
	}

	// Committed. Nothing below may undo the activation.
	if req.Payment.AuthorizationCode != "" && !res.Subscription.Linked() {
		linked, err := s.Link(ctx, res.Subscription.ID, req.Payment.AuthorizationCode, req.Payment.ProviderCustomerID, req.Source)
		if err != nil {
			lg.Warnw("provider subscription linking failed", "err", err)
		} else if linked != nil {
			res.Subscription = linked
		}
	}

	action := audit.ActionSubscriptionActivated
	if res.AlreadyActive {
		action = audit.ActionSubscriptionActivationRerun
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:     res.Subscription.UserID,
		Action:     action,
		Resource:   "subscription",
		ResourceID: res.Subscription.ID,
		Details: map[string]any{
			"source":          string(req.Source),
			"previous_status": string(prevStatus),
			"reference":       req.Payment.Reference,
			"payment_id":      res.Payment.ID,
			"amount":          money.FromMinor(req.Payment.Amount).String(),
			"currency":        req.Payment.Currency,
		},
	})
	lg.Infow("subscription activated", "previous_status", prevStatus, "already_active", res.AlreadyActive)
	return res, nil
}

// settlePayment finds or creates the payment row for the reference. conflict
// reports a reference already settled for a different subscription.
func (s *Service) settlePayment(ctx context.Context, tx store.Store, sub *models.Subscription, pd PaymentData, now time.Time) (*models.Payment, bool, error) {
	paidAt := pd.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	provider := pd.Provider
	if provider == "" {
		provider = sub.Provider
	}

	payment, err := tx.GetPaymentByRef(ctx, pd.Reference)
	switch {
	case errors.Is(err, store.ErrNotFound):
		payment = &models.Payment{
			SubscriptionID:     sub.ID,
			Amount:             money.FromMinor(pd.Amount),
			Currency:           pd.Currency,
			Status:             types.PaymentStatusSucceeded,
			Provider:           provider,
			ProviderPaymentID:  pd.ProviderPaymentID,
			ProviderPaymentRef: pd.Reference,
			AuthorizationCode:  lo.EmptyableToPtr(pd.AuthorizationCode),
			PaidAt:             lo.ToPtr(paidAt),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return nil, false, fmt.Errorf("failed to create payment: %w", err)
		}
		return payment, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to load payment: %w", err)
	}

	if payment.Status == types.PaymentStatusSucceeded {
		return payment, payment.SubscriptionID != sub.ID, nil
	}
	payment.SubscriptionID = sub.ID
	payment.Status = types.PaymentStatusSucceeded
	payment.Amount = money.FromMinor(pd.Amount)
	payment.Currency = pd.Currency
	payment.PaidAt = lo.ToPtr(paidAt)
	if pd.ProviderPaymentID != "" {
		payment.ProviderPaymentID = pd.ProviderPaymentID
	}
	if pd.AuthorizationCode != "" {
		payment.AuthorizationCode = lo.ToPtr(pd.AuthorizationCode)
	}
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return nil, false, fmt.Errorf("failed to update payment: %w", err)
	}
	return payment, false, nil
}

func outcomeLabel(res *Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res == nil:
		return "unknown"
	case res.Replayed:
		return "replayed"
	case !res.Success:
		return string(res.Reason)
	case res.AlreadyActive:
		return "already_active"
	}
	return "activated"
}

var Module = fx.Options(
	fx.Provide(NewService),
)
