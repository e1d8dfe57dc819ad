package models

import "time"

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusApproved   = "approved"
	TaskStatusRejected   = "rejected"
	TaskStatusArchived   = "archived"
)

const (
	TaskTypeAssigned = "assigned"
	TaskTypeHanging  = "hanging"
)

const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
)

// Task holds both recurring templates and concrete instances in one table.
// A template has IsRecurring=true and ParentTaskID=nil; its instances carry
// the template id in ParentTaskID. One-off tasks have both unset.
//
// The idx_task_slot unique index on (parent_task_id, due_date) is what makes
// instance generation idempotent: a second insert for the same due slot is
// rejected by the database, not by application logic.
type Task struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	FamilyID     uint   `gorm:"not null;index" json:"family_id"`
	ParentTaskID *uint  `gorm:"index;uniqueIndex:idx_task_slot" json:"parent_task_id,omitempty"`
	Title        string `gorm:"size:150;not null" json:"title"`
	Description  string `gorm:"size:500" json:"description"`

	Points        int    `gorm:"not null;default:0" json:"points"`
	PenaltyPoints int    `gorm:"not null;default:0" json:"penalty_points"`
	TaskType      string `gorm:"size:10;not null;default:'assigned'" json:"task_type"`
	AssigneeID    *uint  `gorm:"index" json:"assignee_id,omitempty"`
	CreatedByID   uint   `gorm:"not null" json:"created_by_id"`

	IsRecurring         bool   `gorm:"not null;default:false" json:"is_recurring"`
	RecurringPattern    string `gorm:"size:10" json:"recurring_pattern,omitempty"`
	RecurringTime       string `gorm:"size:5" json:"recurring_time,omitempty"`
	RecurringDays       string `gorm:"size:20" json:"recurring_days,omitempty"`
	RecurringDayOfMonth int    `gorm:"default:0" json:"recurring_day_of_month,omitempty"`
	Enabled             bool   `gorm:"not null;default:true" json:"enabled"`

	Status                string     `gorm:"size:15;not null;default:'pending';index" json:"status"`
	DueDate               *time.Time `gorm:"uniqueIndex:idx_task_slot;index" json:"due_date,omitempty"`
	SequenceNumber        int        `gorm:"not null;default:0" json:"sequence_number"`
	PenalizedAt           *time.Time `json:"penalized_at,omitempty"`
	RejectedAfterDeadline bool       `gorm:"not null;default:false" json:"rejected_after_deadline"`
	AvailableForPickup    bool       `gorm:"not null;default:false" json:"available_for_pickup"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

// IsTemplate reports whether the row is a recurring definition rather than a
// completable unit of work.
func (t *Task) IsTemplate() bool {
	return t.IsRecurring && t.ParentTaskID == nil
}

// Finished statuses are terminal for automated processes and for single-scope
// edits: completed work is history.
func (t *Task) Finished() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusApproved, TaskStatusArchived:
		return true
	}
	return false
}
