// Package scheduler contains the recurring-task core: materializing concrete
// instances from templates, applying overdue penalties, resolving scoped
// edits across a series, and the single-winner pickup of hanging tasks.
//
// All operations are stateless and re-entrant: they are pure functions of
// "now" plus the durable store, and every race is settled by a conditional
// write (unique index or guarded UPDATE), never by in-process locking. They
// may be invoked concurrently from the cron endpoints, the in-process
// trigger, and client catch-up calls.
package scheduler

import (
	"gorm.io/gorm"

	"chorepoints/notify"
)

type Scheduler struct {
	db       *gorm.DB
	notifier notify.Dispatcher
}

func New(db *gorm.DB, notifier notify.Dispatcher) *Scheduler {
	if notifier == nil {
		notifier = notify.LogDispatcher{}
	}
	return &Scheduler{db: db, notifier: notifier}
}

// RunStats is the aggregate outcome of one batch operation. Per-item failures
// never abort the batch; they are counted and the batch reports success.
type RunStats struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Penalized int `json:"penalized"`
	Failed    int `json:"failed"`
}

func (s *Scheduler) notify(kind string, userID uint, msg string) {
	if userID == 0 {
		return
	}
	s.notifier.Dispatch(notify.Event{Kind: kind, UserID: userID, Message: msg})
}
