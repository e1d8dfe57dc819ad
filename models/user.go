package models

import "time"

const (
	RoleParent = "parent"
	RoleKid    = "kid"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FamilyID  uint      `gorm:"not null;index" json:"family_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Username  string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      string    `gorm:"size:10;not null;default:'kid'" json:"role"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	ChatID    *int64    `gorm:"column:chat_id" json:"chat_id,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (User) TableName() string {
	return "users"
}
