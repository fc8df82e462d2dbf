// Package cancellation ends a user's subscription: immediately when it was
// never paid for, at the end of the paid period otherwise.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/lock"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/metrics"
	"github.com/fatflowers/paysettle/pkg/types"
)

const (
	MessageCanceled         = "Subscription canceled"
	MessageScheduled        = "Subscription will be canceled at the end of the current billing period"
	MessageAlreadyScheduled = "Subscription is already scheduled to cancel at the end of the current billing period"
	MessageNoSubscription   = "No active or pending subscription found"
)

func lockKey(userID string) string {
	return "subscription:cancel:" + userID
}

type Result struct {
	Success      bool                            `json:"success"`
	Reason       types.CancellationFailureReason `json:"reason,omitempty"`
	Message      string                          `json:"message,omitempty"`
	Immediate    bool                            `json:"immediate"`
	Subscription *models.Subscription            `json:"subscription,omitempty"`
}

type Service struct {
	store       store.Store
	locker      lock.Locker
	processors  *processor.Registry
	audit       *audit.Service
	log         *zap.SugaredLogger
	lockTimeout time.Duration
	now         func() time.Time
}

func NewService(st store.Store, locker lock.Locker, processors *processor.Registry, auditSvc *audit.Service, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{
		store:       st,
		locker:      locker,
		processors:  processors,
		audit:       auditSvc,
		log:         log,
		lockTimeout: cfg.Lock.AcquireTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Cancel cancels the user's current subscription. It holds the per-user
// cancel lock and, once the subscription is known, its activation lock so a
// concurrent activation cannot interleave.
func (s *Service) Cancel(ctx context.Context, userID string) (res *Result, err error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	start := time.Now()
	lg := logctx.FromCtx(ctx, s.log).With("user_id", userID)
	defer func() {
		outcome := "error"
		if err == nil {
			outcome = string(res.Reason)
			if res.Success {
				outcome = lo.Ternary(res.Immediate, "canceled", "scheduled")
			}
		}
		metrics.IncOutcome("cancel", outcome)
		metrics.ObserveProcess("cancellation", outcome, start)
	}()

	userLease, ok, err := s.locker.Acquire(ctx, lockKey(userID), s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cancellation lock: %w", err)
	}
	if !ok {
		lg.Infow("cancellation lock busy")
		return &Result{Reason: types.CancellationFailureLockTimeout}, nil
	}
	defer s.release(ctx, userLease)

	subs, err := s.store.ListSubscriptions(ctx, store.SubscriptionQuery{
		UserID:   userID,
		Statuses: types.CancelableStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return &Result{Reason: types.CancellationFailureNoSubscription, Message: MessageNoSubscription}, nil
	}
	if len(subs) > 1 {
		lg.Warnw("user has more than one open subscription, canceling the newest",
			"subscription_ids", lo.Map(subs, func(s *models.Subscription, _ int) string { return s.ID }))
	}
	target := subs[0].ID
	lg = lg.With("subscription_id", target)

	subLease, ok, err := s.locker.Acquire(ctx, activation.LockKey(target), s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire subscription lock: %w", err)
	}
	if !ok {
		lg.Infow("subscription lock busy")
		return &Result{Reason: types.CancellationFailureLockTimeout}, nil
	}
	defer s.release(ctx, subLease)

	res = &Result{}
	var prevStatus types.SubscriptionStatus
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		sub, err := tx.GetSubscriptionForUpdate(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		prevStatus = sub.Status
		if !sub.Status.Cancelable() {
			res = &Result{Reason: types.CancellationFailureNoSubscription, Message: MessageNoSubscription}
			return nil
		}
		now := s.now()
		history := &models.SubscriptionHistory{
			SubscriptionID: sub.ID,
			Reason:         "user requested cancellation",
			CreatedAt:      now,
		}
		switch {
		case sub.Status == types.SubscriptionStatusIncomplete:
			sub.Status = types.SubscriptionStatusCanceled
			sub.CancelAtPeriodEnd = false
			sub.CanceledAt = lo.ToPtr(now)
			history.Action = types.HistoryActionCanceled
			history.OldValue = string(prevStatus)
			history.NewValue = string(types.SubscriptionStatusCanceled)
			res.Immediate = true
			res.Message = MessageCanceled
		case sub.CancelAtPeriodEnd:
			res.Success = true
			res.Message = MessageAlreadyScheduled
			res.Subscription = sub
			return nil
		default:
			sub.CancelAtPeriodEnd = true
			history.Action = types.HistoryActionCancelScheduled
			history.OldValue = "false"
			history.NewValue = "true"
			history.Details = datatypes.JSONMap{"status": string(sub.Status)}
			if sub.CurrentPeriodEnd != nil {
				history.Details["effective_at"] = sub.CurrentPeriodEnd.Format(time.RFC3339)
			}
			res.Message = MessageScheduled
		}
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		if err := tx.AppendHistory(ctx, history); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		res.Success = true
		res.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription %s: %w", target, err)
	}
	if !res.Success || res.Message == MessageAlreadyScheduled {
		return res, nil
	}

	if !res.Immediate && res.Subscription.Linked() {
		s.cancelAtProvider(ctx, res.Subscription)
	}

	action := audit.ActionSubscriptionCancelScheduled
	if res.Immediate {
		action = audit.ActionSubscriptionCanceled
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:     userID,
		Action:     action,
		Resource:   "subscription",
		ResourceID: target,
		Details:    map[string]any{"previous_status": string(prevStatus)},
	})
	lg.Infow("subscription cancellation recorded", "immediate", res.Immediate)
	return res, nil
}

// cancelAtProvider stops renewals at the processor. Local state is
// authoritative, so failures are only logged.
func (s *Service) cancelAtProvider(ctx context.Context, sub *models.Subscription) {
	lg := logctx.FromCtx(ctx, s.log).With("subscription_id", sub.ID)
	proc, err := s.processors.Get(sub.Provider)
	if err != nil {
		lg.Warnw("no processor for provider cancellation", "provider", sub.Provider, "err", err)
		return
	}
	if err := proc.CancelSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
		lg.Warnw("provider cancellation failed", "provider_subscription_id", *sub.ProviderSubscriptionID, "err", err)
	}
}

func (s *Service) release(ctx context.Context, lease lock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to release lock", "key", lease.Key(), "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(NewService),
)
