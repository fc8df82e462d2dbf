package models

import (
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
)

// PaymentNotificationLog journals every inbound webhook or verification call.
type PaymentNotificationLog struct {
	ID         string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider   types.PaymentProvider        `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	EventType  string                       `gorm:"column:event_type;type:varchar(64)" json:"event_type"`
	TraceID    string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Reference  string                       `gorm:"column:reference;type:varchar(128);index" json:"reference"`
	ReceivedAt time.Time                    `gorm:"column:received_at" json:"received_at"`
	Data       datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result     *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status     PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt  time.Time                    `json:"created_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
