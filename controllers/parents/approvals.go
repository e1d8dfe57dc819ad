package parents

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"chorepoints/database"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/scheduler"
	"chorepoints/utils"
)

// ApproveTaskHandler credits the task's points to its assignee. When an
// accepted point-split negotiation exists for the task, the reward is divided:
// the kid who took the task over gets points minus the split, the original
// assignee gets the split. The completed -> approved transition is a guarded
// UPDATE, so a double-submit credits exactly once.
func ApproveTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	familyID, _ := utils.GetFamilyID(r)

	db := database.DB
	var task models.Task
	if err := db.First(&task, taskID).Error; err != nil || task.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}
	if task.AssigneeID == nil {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Task has no assignee"})
		return
	}
	assignee := *task.AssigneeID

	sch := scheduler.New(db, notify.Default())
	split, err := sch.AcceptedSplit(r.Context(), task.ID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	// The split only applies when the task actually changed hands.
	if split != nil && split.ToUserID != assignee {
		split = nil
	}

	assigneePoints := task.Points
	if split != nil {
		assigneePoints -= split.SplitPoints
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskStatusCompleted).
			Update("status", models.TaskStatusApproved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := creditPoints(tx, assignee, assigneePoints, models.EntryKindApproval, &task.ID,
			fmt.Sprintf("Approved: %s", task.Title)); err != nil {
			return err
		}
		if split != nil && split.SplitPoints > 0 {
			if err := creditPoints(tx, split.FromUserID, split.SplitPoints, models.EntryKindSplit, &task.ID,
				fmt.Sprintf("Split share: %s", task.Title)); err != nil {
				return err
			}
		}
		return nil
	})
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Only completed tasks can be approved"})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Approval failed"})
		return
	}

	// Report what was actually credited, not the task's face value: an
	// accepted split reduces the assignee's share.
	notify.Default().Dispatch(notify.Event{
		Kind: notify.EventTaskApproved, UserID: assignee,
		Message: fmt.Sprintf("%s approved, +%d points", task.Title, assigneePoints),
	})
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task approved"})
}

type RejectTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RejectTaskHandler sends completed work back to the kid. A rejection issued
// after the deadline marks the instance rejected_after_deadline, exempting it
// from the overdue penalty: the lateness from here on is administrative.
func RejectTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	familyID, _ := utils.GetFamilyID(r)

	var req RejectTaskRequest
	_ = decodeOptional(r, &req)

	db := database.DB
	var task models.Task
	if err := db.First(&task, taskID).Error; err != nil || task.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}

	now := time.Now()
	updates := map[string]interface{}{"status": models.TaskStatusRejected}
	if task.DueDate != nil && now.After(*task.DueDate) {
		updates["rejected_after_deadline"] = true
	}

	res := db.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Only completed tasks can be rejected"})
		return
	}

	if task.AssigneeID != nil {
		msg := fmt.Sprintf("%s was sent back", task.Title)
		if req.Reason != "" {
			msg += ": " + req.Reason
		}
		notify.Default().Dispatch(notify.Event{Kind: notify.EventTaskRejected, UserID: *task.AssigneeID, Message: msg})
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task rejected"})
}

// creditPoints applies a relative balance increase and writes the matching
// ledger row.
func creditPoints(tx *gorm.DB, userID uint, points int, kind string, taskID *uint, msg string) error {
	if points < 0 {
		return fmt.Errorf("negative credit")
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("points", gorm.Expr("points + ?", points)).Error; err != nil {
		return err
	}
	var after models.User
	if err := tx.Select("points").First(&after, userID).Error; err != nil {
		return err
	}
	entry := models.PointEntry{
		UserID:  userID,
		Delta:   points,
		Balance: after.Points,
		RefCode: utils.GenerateRefCode(userID),
		Kind:    kind,
		TaskID:  taskID,
		Message: msg,
	}
	return tx.Create(&entry).Error
}

func pathTaskID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid task id"})
		return 0, false
	}
	return uint(id), true
}
