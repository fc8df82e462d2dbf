package types

import "fmt"

type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

// Activatable reports whether the activation transition accepts the status.
func (s SubscriptionStatus) Activatable() bool {
	return s == SubscriptionStatusIncomplete || s == SubscriptionStatusActive
}

// Cancelable reports whether the cancellation workflow accepts the status.
func (s SubscriptionStatus) Cancelable() bool {
	return s == SubscriptionStatusIncomplete || s == SubscriptionStatusActive || s == SubscriptionStatusPastDue
}

// CancelableStatuses lists the statuses the cancellation workflow looks up.
var CancelableStatuses = []SubscriptionStatus{
	SubscriptionStatusIncomplete,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
}

type HistoryAction string

const (
	HistoryActionActivated       HistoryAction = "activated"
	HistoryActionProviderLinked  HistoryAction = "provider_linked"
	HistoryActionCanceled        HistoryAction = "canceled"
	HistoryActionCancelScheduled HistoryAction = "cancel_scheduled"
)

// ActivationSource names the path that triggered an activation. It is closed:
// every value must be listed in Valid and Describe.
type ActivationSource string

const (
	ActivationSourceWebhook        ActivationSource = "webhook"
	ActivationSourceVerification   ActivationSource = "verification"
	ActivationSourceOperatorLink   ActivationSource = "operator_link"
	ActivationSourceReconciliation ActivationSource = "reconciliation"
)

func (s ActivationSource) Valid() bool {
	switch s {
	case ActivationSourceWebhook, ActivationSourceVerification, ActivationSourceOperatorLink, ActivationSourceReconciliation:
		return true
	}
	return false
}

// Describe returns the human readable text written to history and audit rows.
func (s ActivationSource) Describe() string {
	switch s {
	case ActivationSourceWebhook:
		return "payment processor webhook"
	case ActivationSourceVerification:
		return "manual payment verification"
	case ActivationSourceOperatorLink:
		return "operator linked unmatched payment"
	case ActivationSourceReconciliation:
		return "reconciliation pass"
	}
	panic(fmt.Sprintf("unknown activation source %q", string(s)))
}

type ActivationFailureReason string

const (
	ActivationFailureLockTimeout          ActivationFailureReason = "lock_timeout"
	ActivationFailureInvalidStatus        ActivationFailureReason = "invalid_status"
	ActivationFailureSubscriptionNotFound ActivationFailureReason = "subscription_not_found"
	ActivationFailurePaymentConflict      ActivationFailureReason = "payment_conflict"
)

type CancellationFailureReason string

const (
	CancellationFailureLockTimeout    CancellationFailureReason = "lock_timeout"
	CancellationFailureNoSubscription CancellationFailureReason = "no_eligible_subscription"
)
