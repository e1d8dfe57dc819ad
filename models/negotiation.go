package models

import "time"

const (
	NegotiationPending   = "pending"
	NegotiationAccepted  = "accepted"
	NegotiationRejected  = "rejected"
	NegotiationExpired   = "expired"
	NegotiationWithdrawn = "withdrawn"
)

const (
	NegotiationSiblingSplit      = "sibling_split"
	NegotiationParentRenegotiate = "parent_renegotiate"
)

// Negotiation tracks a point-split offer between two kids, or a renegotiation
// with a parent, for one task instance. Expiry is evaluated at read time:
// a row past ExpiresAt is inert even while its stored status is still pending.
type Negotiation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:36;uniqueIndex;not null" json:"code"`
	TaskID      uint      `gorm:"not null;index" json:"task_id"`
	FromUserID  uint      `gorm:"not null;index" json:"from_user_id"`
	ToUserID    uint      `gorm:"not null;index" json:"to_user_id"`
	Kind        string    `gorm:"size:20;not null" json:"kind"`
	OfferPoints int       `gorm:"not null;default:0" json:"offer_points"`
	SplitPoints int       `gorm:"not null;default:0" json:"split_points"`
	Status      string    `gorm:"size:10;not null;default:'pending'" json:"status"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (Negotiation) TableName() string {
	return "negotiations"
}

// Open reports whether the offer can still be acted on at the given moment.
func (n *Negotiation) Open(now time.Time) bool {
	return n.Status == NegotiationPending && now.Before(n.ExpiresAt)
}
