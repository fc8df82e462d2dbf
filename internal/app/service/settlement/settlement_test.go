package settlement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysettle/internal/app/enginetest"
	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/platform/idempotency"
	"github.com/fatflowers/paysettle/pkg/types"
)

var now = time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

func newService(f *enginetest.Fixture) *Service {
	auditSvc := audit.New(f.Store, f.Log)
	act := activation.NewService(f.Store, f.Locker, idempotency.NewGuard(f.Cache, f.Log), f.Registry, auditSvc, f.Config, f.Log)
	act.SetClock(func() time.Time { return now })
	return NewService(
		f.Store,
		correlation.NewMatcher(f.Store, f.Cache, f.Config, f.Log),
		correlation.NewValidator(f.Store, f.Config, f.Log),
		act,
		auditSvc,
		f.Log,
	)
}

func webhook(ref string, amount int64, email string) Request {
	return Request{
		Correlation: correlation.Correlation{
			Reference: ref,
			Amount:    amount,
			Currency:  "USD",
			Email:     email,
			PaymentID: "pay-" + ref,
		},
		Provider: types.PaymentProviderPaystack,
		Source:   types.ActivationSourceWebhook,
	}
}

func openQueue(t *testing.T, f *enginetest.Fixture) int64 {
	t.Helper()
	_, total, err := f.Store.ListUnmatchedPayments(context.Background(), store.UnmatchedQuery{})
	require.NoError(t, err)
	return total
}

func TestSettleEmailAndExactAmount(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.User("u1", "buyer@example.com")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))

	res, err := newService(f).Settle(context.Background(), webhook("ref-1", 2900, "buyer@example.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome)
	require.NotNil(t, res.Match)
	assert.Equal(t, 80, res.Match.Confidence)

	sub, err := f.Store.GetSubscription(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, now.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
	assert.Zero(t, openQueue(t, f))
}

func TestSettleToleratesMalformedEmail(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.User("u1", "buyer@example.com")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))

	req := webhook("ref-1", 2900, "buyer at example dot com")
	req.Correlation.Metadata = map[string]string{"subscription_id": "s1"}
	res, err := newService(f).Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome)
	require.NotNil(t, res.Match)
	assert.Equal(t, "s1", res.Match.SubscriptionID)
	assert.Zero(t, openQueue(t, f))
}

func TestSettleDuplicateWebhook(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.User("u1", "buyer@example.com")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))
	svc := newService(f)
	ctx := context.Background()

	req := webhook("ref-1", 2900, "buyer@example.com")
	req.Correlation.Metadata = map[string]string{"subscription_id": "s1"}
	first, err := svc.Settle(ctx, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeActivated, first.Outcome)

	second, err := svc.Settle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, correlation.ReasonAlreadyProcessed, second.Reason)
	assert.Len(t, f.Store.Payments(), 1)
	assert.Zero(t, openQueue(t, f))
}

func TestSettleNoMatchIsQueued(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")

	req := webhook("ref-9", 1234, "stranger@example.com")
	req.AuthorizationCode = "AUTH_9"
	res, err := newService(f).Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	require.NotEmpty(t, res.UnmatchedID)

	entry, err := f.Store.GetUnmatchedPayment(context.Background(), res.UnmatchedID)
	require.NoError(t, err)
	assert.Equal(t, types.UnmatchedReasonNoMatch, entry.Reason)
	assert.Equal(t, int64(1234), entry.Amount)
	assert.Equal(t, "stranger@example.com", entry.Email)
	assert.Equal(t, "AUTH_9", *entry.AuthorizationCode)
	assert.JSONEq(t, `[]`, string(entry.Candidates))
	require.Len(t, f.Store.AuditLogs(), 1)
	assert.Equal(t, audit.ActionPaymentUnmatched, f.Store.AuditLogs()[0].Action)
}

func TestSettleAmbiguousIsQueued(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-2*time.Hour))
	f.Subscription("s2", "u2", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))
	svc := newService(f)

	res, err := svc.Settle(context.Background(), webhook("ref-1", 2900, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)

	entry, err := f.Store.GetUnmatchedPayment(context.Background(), res.UnmatchedID)
	require.NoError(t, err)
	assert.Equal(t, types.UnmatchedReasonAmbiguous, entry.Reason)
	var cands []correlation.Match
	require.NoError(t, json.Unmarshal(entry.Candidates, &cands))
	assert.Len(t, cands, 2)

	// A redelivery refreshes the same queue entry.
	again, err := svc.Settle(context.Background(), webhook("ref-1", 2900, ""))
	require.NoError(t, err)
	assert.Equal(t, res.UnmatchedID, again.UnmatchedID)
	assert.EqualValues(t, 1, openQueue(t, f))

	for _, id := range []string{"s1", "s2"} {
		sub, err := f.Store.GetSubscription(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionStatusIncomplete, sub.Status)
	}
}

func TestSettleExplicitSubscriptionRejected(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))

	req := webhook("ref-1", 5000, "")
	req.SubscriptionID = "s1"
	req.Source = types.ActivationSourceVerification
	res, err := newService(f).Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, correlation.ReasonAmountMismatch, res.Reason)

	entry, err := f.Store.GetUnmatchedPayment(context.Background(), res.UnmatchedID)
	require.NoError(t, err)
	assert.Equal(t, types.UnmatchedReasonRejected, entry.Reason)
	assert.Equal(t, correlation.ReasonAmountMismatch, entry.Detail)
}

func TestSettleLockContentionAsksForRetry(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))
	f.Config.Lock.AcquireTimeout = 20 * time.Millisecond
	svc := newService(f)

	lease, ok, err := f.Locker.Acquire(context.Background(), activation.LockKey("s1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer lease.Release(context.Background())

	req := webhook("ref-1", 2900, "")
	req.SubscriptionID = "s1"
	res, err := svc.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, res.Outcome)
	assert.True(t, res.Retryable())
	assert.Zero(t, openQueue(t, f))
}

func TestLinkResolvesQueuedPayment(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, now.Add(-time.Hour))
	f.Subscription("s2", "u2", "basic", types.SubscriptionStatusIncomplete, now.Add(-2*time.Hour))
	svc := newService(f)
	ctx := context.Background()

	parked, err := svc.Settle(ctx, webhook("ref-1", 2900, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnmatched, parked.Outcome)

	act, err := svc.Link(ctx, parked.UnmatchedID, "s2", "op-7")
	require.NoError(t, err)
	require.True(t, act.Success)

	entry, err := f.Store.GetUnmatchedPayment(ctx, parked.UnmatchedID)
	require.NoError(t, err)
	assert.Equal(t, types.UnmatchedPaymentStatusResolved, entry.Status)
	assert.Equal(t, "s2", *entry.ResolvedSubscriptionID)
	assert.Equal(t, "op-7", *entry.OperatorID)

	sub, err := f.Store.GetSubscription(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	hs, err := f.Store.ListHistory(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "operator linked unmatched payment", hs[0].Reason)

	_, err = svc.Link(ctx, parked.UnmatchedID, "s2", "op-7")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = svc.Link(ctx, "missing", "s2", "op-7")
	assert.ErrorIs(t, err, ErrUnmatchedNotFound)
}

func TestLinkRefusedLeavesQueueOpen(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusCanceled, now.Add(-time.Hour))
	svc := newService(f)
	ctx := context.Background()

	parked, err := svc.Settle(ctx, webhook("ref-1", 2900, ""))
	require.NoError(t, err)

	act, err := svc.Link(ctx, parked.UnmatchedID, "s1", "op-7")
	require.NoError(t, err)
	assert.Equal(t, types.ActivationFailureInvalidStatus, act.Reason)

	entry, err := f.Store.GetUnmatchedPayment(ctx, parked.UnmatchedID)
	require.NoError(t, err)
	assert.Equal(t, types.UnmatchedPaymentStatusOpen, entry.Status)
}

func TestListValidatesFilters(t *testing.T) {
	f := enginetest.New()
	svc := newService(f)
	ctx := context.Background()
	_, err := svc.Settle(ctx, webhook("ref-1", 2900, ""))
	require.NoError(t, err)

	_, _, err = svc.List(ctx, store.UnmatchedQuery{Filters: types.CommonFilters{
		{Field: "password", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}},
	}})
	require.ErrorIs(t, err, ErrInvalidFilter)

	items, total, err := svc.List(ctx, store.UnmatchedQuery{Filters: types.CommonFilters{
		{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"open"}},
	}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "ref-1", items[0].Reference)
}
