package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysettle/internal/app/enginetest"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/types"
)

func newValidatorAt(f *enginetest.Fixture, now time.Time) *Validator {
	v := NewValidator(f.Store, f.Config, f.Log)
	v.now = func() time.Time { return now }
	return v
}

func TestValidate(t *testing.T) {
	now := t0.Add(24 * time.Hour)
	cases := []struct {
		name    string
		setup   func(f *enginetest.Fixture)
		match   Match
		amount  int64
		valid   bool
		reason  string
		dupFlag bool
	}{
		{
			name:   "valid",
			match:  Match{SubscriptionID: "s1", Confidence: 80},
			amount: 2900,
			valid:  true,
		},
		{
			name:   "missing subscription",
			match:  Match{SubscriptionID: "nope", Confidence: 100},
			amount: 2900,
			reason: ReasonSubscriptionNotFound,
		},
		{
			name: "duplicate delivery",
			setup: func(f *enginetest.Fixture) {
				f.Store.PutPayment(models.Payment{ID: "p1", SubscriptionID: "s1", ProviderPaymentRef: "ref-1", Status: types.PaymentStatusSucceeded, Amount: decimal.RequireFromString("29")})
			},
			match:   Match{SubscriptionID: "s1", Confidence: 100},
			amount:  2900,
			reason:  ReasonAlreadyProcessed,
			dupFlag: true,
		},
		{
			name: "not incomplete",
			setup: func(f *enginetest.Fixture) {
				f.Subscription("s1", "u1", "basic", types.SubscriptionStatusPastDue, t0)
			},
			match:  Match{SubscriptionID: "s1", Confidence: 100},
			amount: 2900,
			reason: "Subscription is not awaiting payment (status: past_due)",
		},
		{
			name: "recently activated",
			setup: func(f *enginetest.Fixture) {
				f.Store.PutHistory(models.SubscriptionHistory{ID: "h1", SubscriptionID: "s1", Action: types.HistoryActionActivated, CreatedAt: now.Add(-30 * time.Second)})
			},
			match:  Match{SubscriptionID: "s1", Confidence: 100},
			amount: 2900,
			reason: ReasonRecentlyActivated,
		},
		{
			name: "old activation is ignored",
			setup: func(f *enginetest.Fixture) {
				f.Store.PutHistory(models.SubscriptionHistory{ID: "h1", SubscriptionID: "s1", Action: types.HistoryActionActivated, CreatedAt: now.Add(-2 * time.Minute)})
			},
			match:  Match{SubscriptionID: "s1", Confidence: 100},
			amount: 2900,
			valid:  true,
		},
		{
			name:   "confident match with wrong amount",
			match:  Match{SubscriptionID: "s1", Confidence: 80},
			amount: 3100,
			reason: ReasonAmountMismatch,
		},
		{
			name:   "weak match skips amount check",
			match:  Match{SubscriptionID: "s1", Confidence: 70},
			amount: 3100,
			valid:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := enginetest.New()
			f.Plan("basic", "29.00", "USD")
			f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, t0)
			if tc.setup != nil {
				tc.setup(f)
			}

			res, err := newValidatorAt(f, now).Validate(context.Background(), tc.match, Correlation{Reference: "ref-1", Amount: tc.amount, Currency: "USD"})
			require.NoError(t, err)
			assert.Equal(t, tc.valid, res.IsValid)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, tc.dupFlag, res.Duplicate)
		})
	}
}

func TestValidateReferenceOnOtherSubscription(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusIncomplete, t0)
	f.Store.PutPayment(models.Payment{ID: "p1", SubscriptionID: "s9", ProviderPaymentRef: "ref-1", Status: types.PaymentStatusPending})

	// A pending payment on another subscription is left for activation to reassign.
	res, err := newValidatorAt(f, t0).Validate(context.Background(), Match{SubscriptionID: "s1", Confidence: 60}, Correlation{Reference: "ref-1", Amount: 2900, Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestValidateDuplicateAfterActivation(t *testing.T) {
	f := enginetest.New()
	f.Plan("basic", "29.00", "USD")
	f.Subscription("s1", "u1", "basic", types.SubscriptionStatusActive, t0)
	f.Store.PutPayment(models.Payment{ID: "p1", SubscriptionID: "s1", ProviderPaymentRef: "ref-1", Status: types.PaymentStatusSucceeded})

	res, err := newValidatorAt(f, t0).Validate(context.Background(), Match{SubscriptionID: "s1", Confidence: 100}, Correlation{Reference: "ref-1", Amount: 2900, Currency: "USD"})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "Payment already processed for this subscription", res.Reason)
}
