package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysettle/internal/app/enginetest"
	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/service/cancellation"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/idempotency"
	"github.com/fatflowers/paysettle/pkg/types"
)

var t0 = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func newService(f *enginetest.Fixture) *Service {
	act := activation.NewService(f.Store, f.Locker, idempotency.NewGuard(f.Cache, f.Log), f.Registry, audit.New(f.Store, f.Log), f.Config, f.Log)
	return NewService(f.Store, f.Locker, act, f.Config, f.Log)
}

func payment(id, sub, auth string, at time.Time) models.Payment {
	return models.Payment{
		ID:                 id,
		SubscriptionID:     sub,
		ProviderPaymentRef: "ref-" + id,
		Status:             types.PaymentStatusSucceeded,
		AuthorizationCode:  lo.EmptyableToPtr(auth),
		CreatedAt:          at,
	}
}

func TestRunLinksUnlinkedSubscriptions(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "NGN")
	f.User("u1", "one@example.com")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Subscription("s2", "u2", "basic", types.SubscriptionStatusActive, t0)
	linked := f.Subscription("s3", "u3", "basic", types.SubscriptionStatusActive, t0)
	linked.ProviderSubscriptionID = lo.ToPtr("SUB_existing")
	f.Store.PutSubscription(linked)
	f.Subscription("s4", "u4", "basic", types.SubscriptionStatusIncomplete, t0)

	f.Store.PutPayment(payment("p1", "s1", "AUTH_old", t0))
	f.Store.PutPayment(payment("p2", "s1", "AUTH_new", t0.Add(time.Hour)))
	f.Store.PutPayment(payment("p3", "s2", "", t0))

	report, err := newService(f).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	require.Len(t, f.Processor.Created, 1)
	assert.Equal(t, "AUTH_new", f.Processor.Created[0].Authorization)
	assert.Equal(t, "one@example.com", f.Processor.Created[0].CustomerCode)

	sub, err := f.Store.GetSubscription(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "SUB_fake", lo.FromPtr(sub.ProviderSubscriptionID))
	hs, err := f.Store.ListHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, types.HistoryActionProviderLinked, hs[0].Action)
	assert.Equal(t, "reconciliation pass", hs[0].Reason)
}

func TestRunLeavesCancelScheduledUnlinked(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "NGN")
	f.User("u1", "one@example.com")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Store.PutPayment(payment("p1", "s1", "AUTH_1", t0))

	cancel := cancellation.NewService(f.Store, f.Locker, f.Registry, audit.New(f.Store, f.Log), f.Config, f.Log)
	res, err := cancel.Cancel(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.Subscription.CancelAtPeriodEnd)

	svc := newService(f)
	report, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Zero(t, report.Linked)
	assert.Empty(t, f.Processor.Created)

	// a direct relink is refused as well
	_, err = svc.reconcileOne(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, f.Processor.Created)
	sub, err := f.Store.GetSubscription(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, sub.Linked())
}

func TestRunCountsFailures(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "NGN")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Store.PutPayment(payment("p1", "s1", "AUTH_1", t0))
	f.Processor.CreateErr = errors.New("upstream 503")

	report, err := newService(f).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "upstream 503")
}

func TestRunSkipsLockedSubscription(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "NGN")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Store.PutPayment(payment("p1", "s1", "AUTH_1", t0))
	f.Config.Lock.AcquireTimeout = 10 * time.Millisecond

	lease, ok, err := f.Locker.Acquire(context.Background(), activation.LockKey("s1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer lease.Release(context.Background())

	report, err := newService(f).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.Processor.Created)
}

func TestRunRequiresPlanCode(t *testing.T) {
	f := enginetest.New()
	plan := f.Plan("basic", "29.00", "NGN")
	plan.ProviderPlanCode = ""
	f.Store.PutPlan(plan)
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Store.PutPayment(payment("p1", "s1", "AUTH_1", t0))

	report, err := newService(f).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors[0], activation.ErrNoPlanCode.Error())
}
