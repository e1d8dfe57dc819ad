package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chorepoints/models"
)

const (
	ScopeSingle = "single"
	ScopeSeries = "series"
)

// TaskEdit carries the fields a parent may change through a scoped edit. Nil
// pointers leave the column untouched.
type TaskEdit struct {
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	Points              *int    `json:"points,omitempty" `
	PenaltyPoints       *int    `json:"penalty_points,omitempty"`
	AssigneeID          *uint   `json:"assignee_id,omitempty"`
	Enabled             *bool   `json:"enabled,omitempty"`
	RecurringPattern    *string `json:"recurring_pattern,omitempty"`
	RecurringTime       *string `json:"recurring_time,omitempty"`
	RecurringDays       *string `json:"recurring_days,omitempty"`
	RecurringDayOfMonth *int    `json:"recurring_day_of_month,omitempty"`
	DueDate             *time.Time `json:"due_date,omitempty"`
}

func (e TaskEdit) scheduleChanged() bool {
	return e.RecurringPattern != nil || e.RecurringTime != nil ||
		e.RecurringDays != nil || e.RecurringDayOfMonth != nil
}

// instanceUpdates are the columns that propagate from a template to its
// unfinished instances on a series-scope edit. Schedule fields never
// propagate: an instance's due_date fixes its position in the series.
func (e TaskEdit) instanceUpdates() map[string]interface{} {
	u := map[string]interface{}{}
	if e.Title != nil {
		u["title"] = *e.Title
	}
	if e.Description != nil {
		u["description"] = *e.Description
	}
	if e.Points != nil {
		u["points"] = *e.Points
	}
	if e.PenaltyPoints != nil {
		u["penalty_points"] = *e.PenaltyPoints
	}
	if e.AssigneeID != nil {
		u["assignee_id"] = *e.AssigneeID
	}
	return u
}

func (e TaskEdit) templateUpdates() map[string]interface{} {
	u := e.instanceUpdates()
	if e.Enabled != nil {
		u["enabled"] = *e.Enabled
	}
	if e.RecurringPattern != nil {
		u["recurring_pattern"] = *e.RecurringPattern
	}
	if e.RecurringTime != nil {
		u["recurring_time"] = *e.RecurringTime
	}
	if e.RecurringDays != nil {
		u["recurring_days"] = *e.RecurringDays
	}
	if e.RecurringDayOfMonth != nil {
		u["recurring_day_of_month"] = *e.RecurringDayOfMonth
	}
	return u
}

// ApplyScopedEdit mutates one instance, or a template plus its unfinished
// instances, depending on scope. Completed, approved and archived instances
// are never touched; targeting one directly fails with ErrNotEditable.
func (s *Scheduler) ApplyScopedEdit(ctx context.Context, taskID uint, scope string, edit TaskEdit, now time.Time) error {
	target, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	// A series-scope action against an instance resolves to its template.
	if scope == ScopeSeries && target.ParentTaskID != nil {
		target, err = s.loadTask(ctx, *target.ParentTaskID)
		if err != nil {
			return err
		}
	}

	if target.IsTemplate() {
		return s.editTemplate(ctx, target, scope, edit, now)
	}

	if target.Finished() {
		return ErrNotEditable
	}
	updates := edit.instanceUpdates()
	if edit.DueDate != nil {
		updates["due_date"] = *edit.DueDate
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", target.ID).
		Updates(updates).Error
}

func (s *Scheduler) editTemplate(ctx context.Context, tpl *models.Task, scope string, edit TaskEdit, now time.Time) error {
	if edit.scheduleChanged() {
		next := *tpl
		applyScheduleEdit(&next, edit)
		sched, err := ParseSchedule(&next)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if err := sched.ValidateLeadTime(now); err != nil {
			return err
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if u := edit.templateUpdates(); len(u) > 0 {
			if err := tx.Model(&models.Task{}).Where("id = ?", tpl.ID).Updates(u).Error; err != nil {
				return err
			}
		}
		if scope != ScopeSeries {
			// Single-scope template edit: the definition changes, future
			// materializations follow the new rule, nothing retroactive.
			return nil
		}
		if u := edit.instanceUpdates(); len(u) > 0 {
			if err := tx.Model(&models.Task{}).
				Where("parent_task_id = ? AND status IN ?", tpl.ID,
					[]string{models.TaskStatusPending, models.TaskStatusInProgress}).
				Updates(u).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyScopedDelete archives one instance, or disables a template and
// archives its unfinished instances. Completed and approved instances are
// preserved as history in every case.
func (s *Scheduler) ApplyScopedDelete(ctx context.Context, taskID uint, scope string) error {
	target, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if scope == ScopeSeries && target.ParentTaskID != nil {
		target, err = s.loadTask(ctx, *target.ParentTaskID)
		if err != nil {
			return err
		}
	}

	if !target.IsTemplate() {
		if target.Finished() {
			return ErrNotEditable
		}
		return s.db.WithContext(ctx).Model(&models.Task{}).
			Where("id = ?", target.ID).
			Update("status", models.TaskStatusArchived).Error
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Stop future generation in both scopes.
		if err := tx.Model(&models.Task{}).Where("id = ?", target.ID).
			Update("enabled", false).Error; err != nil {
			return err
		}
		if scope != ScopeSeries {
			return nil
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", target.ID).
			Update("status", models.TaskStatusArchived).Error; err != nil {
			return err
		}
		return tx.Model(&models.Task{}).
			Where("parent_task_id = ? AND status IN ?", target.ID,
				[]string{models.TaskStatusPending, models.TaskStatusInProgress}).
			Update("status", models.TaskStatusArchived).Error
	})
}

func (s *Scheduler) loadTask(ctx context.Context, id uint) (*models.Task, error) {
	var t models.Task
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func applyScheduleEdit(t *models.Task, e TaskEdit) {
	if e.RecurringPattern != nil {
		t.RecurringPattern = *e.RecurringPattern
	}
	if e.RecurringTime != nil {
		t.RecurringTime = *e.RecurringTime
	}
	if e.RecurringDays != nil {
		t.RecurringDays = *e.RecurringDays
	}
	if e.RecurringDayOfMonth != nil {
		t.RecurringDayOfMonth = *e.RecurringDayOfMonth
	}
}
