package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID     string            `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Action     string            `gorm:"column:action;type:varchar(64);not null" json:"action"`
	Resource   string            `gorm:"column:resource;type:varchar(64);not null" json:"resource"`
	ResourceID string            `gorm:"column:resource_id;type:varchar(64);not null;index" json:"resource_id"`
	Details    datatypes.JSONMap `gorm:"column:details;type:jsonb;default:'{}'" json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
