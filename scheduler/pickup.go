package scheduler

import (
	"context"
	"fmt"

	"chorepoints/models"
	"chorepoints/notify"
)

// PickupHangingTask claims a hanging instance for the claimant. The claim is
// a single conditional UPDATE ("assign iff still unassigned"), so under N
// concurrent attempts exactly one wins; the rest get ErrAlreadyClaimed, which
// clients surface as "someone else got it first" rather than a retry prompt.
func (s *Scheduler) PickupHangingTask(ctx context.Context, taskID, claimantID uint) (*models.Task, error) {
	res := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND task_type = ? AND available_for_pickup = ? AND assignee_id IS NULL",
			taskID, models.TaskTypeHanging, true).
		Updates(map[string]interface{}{
			"assignee_id":          claimantID,
			"available_for_pickup": false,
			"status":               models.TaskStatusInProgress,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim task %d: %w", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		task, err := s.loadTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.TaskType != models.TaskTypeHanging {
			return nil, ErrTaskNotFound
		}
		return nil, ErrAlreadyClaimed
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.notify(notify.EventTaskClaimed, task.CreatedByID,
		fmt.Sprintf("%s was picked up", task.Title))
	return task, nil
}
