package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chorepoints/models"
	"chorepoints/notify"
)

// EnsureCurrentInstances materializes due instances for every enabled
// recurring template. It is idempotent: calling it N times for the same now
// produces the same instance set as calling it once, because each (template,
// due slot) insert is conditional on the idx_task_slot unique index. Failures
// on one template do not abort the others.
func (s *Scheduler) EnsureCurrentInstances(ctx context.Context, now time.Time) (RunStats, error) {
	var stats RunStats

	var templates []models.Task
	if err := s.db.WithContext(ctx).
		Where("is_recurring = ? AND parent_task_id IS NULL AND enabled = ? AND status <> ?",
			true, true, models.TaskStatusArchived).
		Find(&templates).Error; err != nil {
		return stats, fmt.Errorf("load templates: %w", err)
	}

	for i := range templates {
		tpl := templates[i]
		stats.Processed++
		n, err := s.materializeDue(ctx, &tpl, now)
		if err != nil {
			stats.Failed++
			log.Printf("[scheduler] template %d: %v", tpl.ID, err)
			continue
		}
		stats.Generated += n
	}
	return stats, nil
}

func (s *Scheduler) materializeDue(ctx context.Context, tpl *models.Task, now time.Time) (int, error) {
	sched, err := ParseSchedule(tpl)
	if err != nil {
		return 0, fmt.Errorf("parse schedule: %w", err)
	}

	created := 0
	for _, occ := range sched.DueOccurrences(tpl.CreatedAt, now) {
		ok, err := s.createInstance(ctx, tpl, occ)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// createInstance inserts the instance for one due slot. The insert no-ops
// when a non-archived instance for (template, due slot) already exists: a
// concurrent trigger that lost the race sees zero rows affected, not an
// error. Returns whether a row was actually created.
func (s *Scheduler) createInstance(ctx context.Context, tpl *models.Task, due time.Time) (bool, error) {
	var createdFor uint
	inserted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the template row first. Two triggers materializing different
		// slots for the same template (a cron tick and a penalty-chained
		// refill) must not read the same MAX(sequence_number): under
		// REPEATABLE READ their inserts hit disjoint due slots and both
		// commit. Serializing on the template row keeps sequence numbers
		// unique per series.
		var tplRow models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&tplRow, tpl.ID).Error; err != nil {
			return err
		}

		// Archived instances vacate their slot, so the unique index alone is
		// not enough; an archived row for this slot means the parent deleted
		// it deliberately. Skip the slot.
		var n int64
		if err := tx.Model(&models.Task{}).
			Where("parent_task_id = ? AND due_date = ?", tpl.ID, due).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		var maxSeq int
		if err := tx.Model(&models.Task{}).
			Where("parent_task_id = ?", tpl.ID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		dueCopy := due
		inst := models.Task{
			FamilyID:           tpl.FamilyID,
			ParentTaskID:       &tpl.ID,
			Title:              tpl.Title,
			Description:        tpl.Description,
			Points:             tpl.Points,
			PenaltyPoints:      tpl.PenaltyPoints,
			TaskType:           tpl.TaskType,
			AssigneeID:         tpl.AssigneeID,
			CreatedByID:        tpl.CreatedByID,
			Status:             models.TaskStatusPending,
			DueDate:            &dueCopy,
			SequenceNumber:     maxSeq + 1,
			AvailableForPickup: tpl.TaskType == models.TaskTypeHanging,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&inst)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent trigger. Nothing to do.
			return nil
		}
		inserted = true
		if tpl.AssigneeID != nil {
			createdFor = *tpl.AssigneeID
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("materialize slot %s: %w", due.Format(time.RFC3339), err)
	}

	if inserted && createdFor != 0 {
		s.notify(notify.EventInstanceCreated, createdFor,
			fmt.Sprintf("New chore: %s, due %s", tpl.Title, due.Format("Mon 15:04")))
	}
	return inserted, nil
}

// materializeNext creates the instance for the first occurrence after the
// given time. The penalty processor uses it to keep a series alive the
// moment an occurrence is missed, instead of waiting for the next trigger.
func (s *Scheduler) materializeNext(ctx context.Context, templateID uint, after time.Time) error {
	var tpl models.Task
	if err := s.db.WithContext(ctx).First(&tpl, templateID).Error; err != nil {
		return fmt.Errorf("load template %d: %w", templateID, err)
	}
	if !tpl.Enabled || tpl.Status == models.TaskStatusArchived {
		return nil
	}
	sched, err := ParseSchedule(&tpl)
	if err != nil {
		return fmt.Errorf("parse schedule: %w", err)
	}
	next := sched.NextOccurrence(after)
	if next.IsZero() {
		return nil
	}
	_, err = s.createInstance(ctx, &tpl, next)
	return err
}
