// Package audit writes the audit trail and the inbound notification journal.
package audit

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/logctx"
)

// Entry is one audit-log record.
type Entry struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]any
}

const (
	ActionSubscriptionActivated       = "subscription.activated"
	ActionSubscriptionActivationRerun = "subscription.activation_replayed"
	ActionSubscriptionCanceled        = "subscription.canceled"
	ActionSubscriptionCancelScheduled = "subscription.cancel_scheduled"
	ActionSubscriptionLinked          = "subscription.provider_linked"
	ActionPaymentUnmatched            = "payment.unmatched"
	ActionUnmatchedPaymentLinked      = "unmatched_payment.linked"
)

type Service struct {
	store store.Store
	log   *zap.SugaredLogger
	wg    sync.WaitGroup
}

func New(st store.Store, log *zap.SugaredLogger) *Service { return &Service{store: st, log: log} }

// Record writes an audit entry. The audit trail never fails the operation it
// describes, so a write failure is logged and dropped.
func (s *Service) Record(ctx context.Context, e Entry) {
	row := &models.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Details:    e.Details,
	}
	if err := s.store.CreateAuditLog(context.WithoutCancel(ctx), row); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to write audit log", "action", e.Action, "resource_id", e.ResourceID, "err", err)
	}
}

// SaveNotification asynchronously persists a notification journal row. Nil
// input is ignored.
func (s *Service) SaveNotification(ctx context.Context, entry *models.PaymentNotificationLog) {
	if entry == nil {
		return
	}
	// The request context is usually done by the time the write runs.
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.SaveNotificationLog(ctx, entry); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

// Flush waits for pending notification writes.
func (s *Service) Flush() { s.wg.Wait() }

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Flush()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
