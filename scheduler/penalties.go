package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/utils"
)

// ProcessOverduePenalties deducts penalty points for every instance past its
// deadline that is still pending, in progress or rejected. The deduction happens at
// most once per instance: the penalized_at column is claimed with a
// conditional UPDATE, so concurrent invocations cannot double-penalize. The
// instance keeps its status; a late completion is still submittable.
// penalized_at is set only when a deduction was actually applied.
//
// Unclaimed hanging instances are skipped: there is nobody to penalize. A
// kid who later picks one up inherits its deadline.
//
// Instances whose lateness was caused by a parent rejecting after the
// deadline (rejected_after_deadline) are exempt: that lateness was
// administrative, not the kid's.
func (s *Scheduler) ProcessOverduePenalties(ctx context.Context, now time.Time) (RunStats, error) {
	var stats RunStats

	var overdue []models.Task
	if err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ? AND assignee_id IS NOT NULL", now).
		Where("status IN ?", []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusRejected}).
		Where("penalized_at IS NULL AND penalty_points > 0 AND rejected_after_deadline = ?", false).
		Find(&overdue).Error; err != nil {
		return stats, fmt.Errorf("load overdue instances: %w", err)
	}

	for i := range overdue {
		inst := overdue[i]
		stats.Processed++
		applied, err := s.penalize(ctx, &inst, now)
		if err != nil {
			stats.Failed++
			log.Printf("[scheduler] penalty for task %d: %v", inst.ID, err)
			continue
		}
		if !applied {
			continue
		}
		stats.Penalized++

		// Self-healing: a missed occurrence immediately schedules the next
		// one. One-way dependency only; materialization never calls back
		// into the penalty scan.
		if inst.ParentTaskID != nil {
			if err := s.materializeNext(ctx, *inst.ParentTaskID, now); err != nil {
				log.Printf("[scheduler] next instance after penalty on task %d: %v", inst.ID, err)
			}
		}
	}
	return stats, nil
}

// penalize claims and applies the penalty for one instance. Returns false
// without error when another invocation claimed it first.
func (s *Scheduler) penalize(ctx context.Context, inst *models.Task, now time.Time) (bool, error) {
	if inst.AssigneeID == nil {
		return false, nil
	}
	assignee := *inst.AssigneeID

	var deducted int
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The claim: exactly one invocation flips penalized_at from NULL.
		res := tx.Model(&models.Task{}).
			Where("id = ? AND penalized_at IS NULL", inst.ID).
			Update("penalized_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true

		var before models.User
		if err := tx.Select("points").First(&before, assignee).Error; err != nil {
			return err
		}

		// Relative, floored deduction in a single statement; the balance
		// never goes below zero regardless of interleaving.
		if err := tx.Model(&models.User{}).
			Where("id = ?", assignee).
			Update("points", gorm.Expr(
				"CASE WHEN points >= ? THEN points - ? ELSE 0 END",
				inst.PenaltyPoints, inst.PenaltyPoints)).Error; err != nil {
			return err
		}

		var after models.User
		if err := tx.Select("points").First(&after, assignee).Error; err != nil {
			return err
		}
		// The ledger records what the floor actually allowed: a kid with 3
		// points and a 5-point penalty loses 3, not 5.
		deducted = before.Points - after.Points

		entry := models.PointEntry{
			UserID:  assignee,
			Delta:   -deducted,
			Balance: after.Points,
			RefCode: utils.GenerateRefCode(assignee),
			Kind:    models.EntryKindPenalty,
			TaskID:  &inst.ID,
			Message: fmt.Sprintf("Missed deadline: %s", inst.Title),
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return false, err
	}

	if claimed {
		s.notify(notify.EventPenaltyApplied, assignee,
			fmt.Sprintf("%s was not done in time: -%d points", inst.Title, deducted))
	}
	return claimed, nil
}
