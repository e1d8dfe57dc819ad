package models

import "time"

const (
	RedemptionRequested = "requested"
	RedemptionGranted   = "granted"
	RedemptionDenied    = "denied"
)

type Reward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FamilyID    uint      `gorm:"not null;index" json:"family_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	Cost        int       `gorm:"not null" json:"cost"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (Reward) TableName() string {
	return "rewards"
}

type Redemption struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RewardID  uint      `gorm:"not null;index" json:"reward_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Cost      int       `gorm:"not null" json:"cost"`
	RefCode   string    `gorm:"size:40;uniqueIndex;not null" json:"ref_code"`
	Status    string    `gorm:"size:10;not null;default:'requested'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	Reward *Reward `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
}

func (Redemption) TableName() string {
	return "redemptions"
}
