package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan struct {
	ID   string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	// Price is in major currency units.
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency         string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Interval         string          `gorm:"column:interval;type:varchar(16);not null;default:'monthly'" json:"interval"`
	ProviderPlanCode string          `gorm:"column:provider_plan_code;type:varchar(128)" json:"provider_plan_code"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}
