package models

import (
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
	"gorm.io/datatypes"
)

// SubscriptionHistory is the append-only log of status affecting transitions.
// The activation guard also reads it to detect recent duplicate activations.
type SubscriptionHistory struct {
	ID             string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string              `gorm:"column:subscription_id;type:uuid;not null;index:idx_history_sub_action_time,priority:1" json:"subscription_id"`
	Action         types.HistoryAction `gorm:"column:action;type:varchar(32);not null;index:idx_history_sub_action_time,priority:2" json:"action"`
	OldValue       string              `gorm:"column:old_value;type:varchar(128)" json:"old_value"`
	NewValue       string              `gorm:"column:new_value;type:varchar(128)" json:"new_value"`
	Reason         string              `gorm:"column:reason;type:varchar(255)" json:"reason"`
	// Details carries source, payment reference and similar context.
	Details   datatypes.JSONMap `gorm:"column:details;type:jsonb;default:'{}'" json:"details"`
	CreatedAt time.Time         `gorm:"index:idx_history_sub_action_time,priority:3" json:"created_at"`
}

func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
