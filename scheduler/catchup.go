package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"chorepoints/models"
)

// CatchUpFamily runs the materialization and penalty passes for one family.
// A kid opening the app triggers it so missed cron runs do not leave the
// family's board stale. It is safe to run concurrently with the global cron
// passes; every write is conditional.
func (s *Scheduler) CatchUpFamily(ctx context.Context, familyID uint, now time.Time) (RunStats, error) {
	var stats RunStats

	var templates []models.Task
	if err := s.db.WithContext(ctx).
		Where("family_id = ? AND is_recurring = ? AND parent_task_id IS NULL AND enabled = ? AND status <> ?",
			familyID, true, true, models.TaskStatusArchived).
		Find(&templates).Error; err != nil {
		return stats, fmt.Errorf("load family templates: %w", err)
	}
	for i := range templates {
		tpl := templates[i]
		stats.Processed++
		n, err := s.materializeDue(ctx, &tpl, now)
		if err != nil {
			stats.Failed++
			log.Printf("[scheduler] catch-up template %d: %v", tpl.ID, err)
			continue
		}
		stats.Generated += n
	}

	var overdue []models.Task
	if err := s.db.WithContext(ctx).
		Where("family_id = ? AND due_date IS NOT NULL AND due_date < ?", familyID, now).
		Where("status IN ?", []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusRejected}).
		Where("penalized_at IS NULL AND penalty_points > 0 AND rejected_after_deadline = ?", false).
		Find(&overdue).Error; err != nil {
		return stats, fmt.Errorf("load family overdue: %w", err)
	}
	for i := range overdue {
		inst := overdue[i]
		stats.Processed++
		applied, err := s.penalize(ctx, &inst, now)
		if err != nil {
			stats.Failed++
			log.Printf("[scheduler] catch-up penalty for task %d: %v", inst.ID, err)
			continue
		}
		if !applied {
			continue
		}
		stats.Penalized++
		if inst.ParentTaskID != nil {
			if err := s.materializeNext(ctx, *inst.ParentTaskID, now); err != nil {
				log.Printf("[scheduler] catch-up next instance for task %d: %v", inst.ID, err)
			}
		}
	}
	return stats, nil
}
