package models

import "time"

type User struct {
	ID string `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	// Email is stored lower-cased.
	Email     string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "user_account"
}
