package models

import (
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
	"gorm.io/datatypes"
)

// UnmatchedPayment is the operator queue for payments the engine refused to
// attach automatically.
type UnmatchedPayment struct {
	ID        string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Reference string                `gorm:"column:reference;type:varchar(128);not null;uniqueIndex" json:"reference"`
	Provider  types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	PaymentID string                `gorm:"column:payment_id;type:varchar(128)" json:"payment_id"`
	// Amount is in minor currency units, as received.
	Amount            int64                        `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency          string                       `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Email             string                       `gorm:"column:email;type:varchar(255)" json:"email"`
	AuthorizationCode *string                      `gorm:"column:authorization_code;type:varchar(128);default:null" json:"-"`
	Metadata          datatypes.JSONMap            `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	Reason            types.UnmatchedReason        `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Detail            string                       `gorm:"column:detail;type:varchar(255)" json:"detail"`
	Candidates        datatypes.JSON               `gorm:"column:candidates;type:jsonb;default:'[]'" json:"candidates"`
	Status            types.UnmatchedPaymentStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// ResolvedSubscriptionID and OperatorID are set when an operator links it.
	ResolvedSubscriptionID *string    `gorm:"column:resolved_subscription_id;type:uuid;default:null" json:"resolved_subscription_id"`
	OperatorID             *string    `gorm:"column:operator_id;type:varchar(64);default:null" json:"operator_id"`
	ResolvedAt             *time.Time `gorm:"column:resolved_at;default:null" json:"resolved_at"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (UnmatchedPayment) TableName() string {
	return "unmatched_payment"
}
