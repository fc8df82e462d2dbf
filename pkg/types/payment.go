package types

type PaymentProvider string

const (
	PaymentProviderPaystack PaymentProvider = "paystack"
	PaymentProviderStripe   PaymentProvider = "stripe"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type UnmatchedPaymentStatus string

const (
	UnmatchedPaymentStatusOpen     UnmatchedPaymentStatus = "open"
	UnmatchedPaymentStatusResolved UnmatchedPaymentStatus = "resolved"
)

// UnmatchedReason explains why a payment landed in the operator queue.
type UnmatchedReason string

const (
	UnmatchedReasonNoMatch   UnmatchedReason = "no_match"
	UnmatchedReasonAmbiguous UnmatchedReason = "ambiguous"
	UnmatchedReasonRejected  UnmatchedReason = "rejected"
)
