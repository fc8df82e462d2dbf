package models

import (
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
	"github.com/shopspring/decimal"
)

// Payment is one processor transaction. ProviderPaymentRef is the correlation
// key; once succeeded it belongs to exactly one subscription.
type Payment struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	// Amount is in major currency units.
	Amount             decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency           string                `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status             types.PaymentStatus   `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Provider           types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	ProviderPaymentID  string                `gorm:"column:provider_payment_id;type:varchar(128)" json:"provider_payment_id"`
	ProviderPaymentRef string                `gorm:"column:provider_payment_ref;type:varchar(128);not null;uniqueIndex" json:"provider_payment_ref"`
	AuthorizationCode  *string               `gorm:"column:authorization_code;type:varchar(128);default:null" json:"-"`
	PaidAt             *time.Time            `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
