package models

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	require.Equal(t, "subscription", Subscription{}.TableName())
	require.Equal(t, "subscription_history", SubscriptionHistory{}.TableName())
	require.Equal(t, "payment", Payment{}.TableName())
	require.Equal(t, "unmatched_payment", UnmatchedPayment{}.TableName())
	require.Equal(t, "payment_notification_log", PaymentNotificationLog{}.TableName())
}

func TestSubscriptionLinked(t *testing.T) {
	var nilSub *Subscription
	require.False(t, nilSub.Linked())
	require.False(t, (&Subscription{}).Linked())
	require.False(t, (&Subscription{ProviderSubscriptionID: lo.ToPtr("")}).Linked())
	require.True(t, (&Subscription{ProviderSubscriptionID: lo.ToPtr("SUB_x")}).Linked())
}
