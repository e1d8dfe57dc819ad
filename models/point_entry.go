package models

import "time"

const (
	EntryKindApproval   = "approval"
	EntryKindPenalty    = "penalty"
	EntryKindRedemption = "redemption"
	EntryKindRefund     = "refund"
	EntryKindSplit      = "split"
)

// PointEntry is the ledger: one row per balance mutation, with the balance
// after the mutation so history can be audited without replaying deltas.
type PointEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Delta     int       `gorm:"not null" json:"delta"`
	Balance   int       `gorm:"not null" json:"balance"`
	RefCode   string    `gorm:"size:40;uniqueIndex;not null" json:"ref_code"`
	Kind      string    `gorm:"size:15;not null" json:"kind"`
	TaskID    *uint     `gorm:"index" json:"task_id,omitempty"`
	RewardID  *uint     `json:"reward_id,omitempty"`
	Message   string    `gorm:"size:255" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (PointEntry) TableName() string {
	return "point_entries"
}
