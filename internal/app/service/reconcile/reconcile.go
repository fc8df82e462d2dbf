// Package reconcile repairs subscriptions that were activated but never
// linked to a processor-side subscription because the best-effort call
// failed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/platform/lock"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/metrics"
	"github.com/fatflowers/paysettle/pkg/types"
)

const defaultBatch = 100

type Report struct {
	Scanned int      `json:"scanned"`
	Linked  int      `json:"linked"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type Service struct {
	store       store.Store
	locker      lock.Locker
	activation  *activation.Service
	log         *zap.SugaredLogger
	lockTimeout time.Duration
}

func NewService(st store.Store, locker lock.Locker, act *activation.Service, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{store: st, locker: locker, activation: act, log: log, lockTimeout: cfg.Lock.AcquireTimeout}
}

// Run scans up to limit active, unlinked subscriptions that are not scheduled
// to cancel, and retries linking each one under its activation lock.
// Per-subscription failures are counted, not returned.
func (s *Service) Run(ctx context.Context, limit int) (*Report, error) {
	start := time.Now()
	lg := logctx.FromCtx(ctx, s.log)
	if limit <= 0 {
		limit = defaultBatch
	}
	subs, err := s.store.ListSubscriptions(ctx, store.SubscriptionQuery{
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		Unlinked: true,
		Renewing: true,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked subscriptions: %w", err)
	}

	report := &Report{Scanned: len(subs)}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		linked, err := s.reconcileOne(ctx, sub.ID)
		switch {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sub.ID, err))
			lg.Warnw("reconcile failed", "subscription_id", sub.ID, "err", err)
		case linked:
			report.Linked++
		default:
			report.Skipped++
		}
	}
	metrics.ObserveProcess("reconcile", lo.Ternary(report.Failed > 0, "partial", "ok"), start)
	lg.Infow("reconcile finished", "scanned", report.Scanned, "linked", report.Linked, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// reconcileOne reports linked=false when there is nothing to link with or
// another worker holds the subscription.
func (s *Service) reconcileOne(ctx context.Context, subscriptionID string) (bool, error) {
	payment, err := s.store.LatestLinkablePayment(ctx, subscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	lease, ok, err := s.locker.Acquire(ctx, activation.LockKey(subscriptionID), s.lockTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("failed to release activation lock", "subscription_id", subscriptionID, "err", err)
		}
	}()

	sub, err := s.activation.Link(ctx, subscriptionID, lo.FromPtr(payment.AuthorizationCode), "", types.ActivationSourceReconciliation)
	if err != nil {
		return false, err
	}
	return sub.Linked(), nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
