package models

import (
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
)

// Subscription is created as incomplete by checkout and only moved by the
// activation and cancellation workflows. Rows are never deleted.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index:idx_subscription_user_status,priority:1" json:"user_id"`
	PlanID string                   `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index:idx_subscription_user_status,priority:2;index:idx_subscription_status_created,priority:1" json:"status"`
	// Provider is the processor the subscription is billed through.
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	NextBillingDate    *time.Time `gorm:"column:next_billing_date;default:null" json:"next_billing_date"`
	CancelAtPeriodEnd  bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time `gorm:"column:canceled_at;default:null" json:"canceled_at"`

	// ProviderSubscriptionID is filled by best-effort linking after activation.
	ProviderSubscriptionID *string `gorm:"column:provider_subscription_id;type:varchar(128);default:null" json:"provider_subscription_id"`
	ProviderCustomerID     *string `gorm:"column:provider_customer_id;type:varchar(128);default:null" json:"provider_customer_id"`

	RetryCount         int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	GracePeriodEnd     *time.Time `gorm:"column:grace_period_end;default:null" json:"grace_period_end"`
	LastPaymentAttempt *time.Time `gorm:"column:last_payment_attempt;default:null" json:"last_payment_attempt"`

	CreatedAt time.Time `gorm:"index:idx_subscription_status_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Linked reports whether the processor-side subscription already exists.
func (s *Subscription) Linked() bool {
	return s != nil && s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID != ""
}
