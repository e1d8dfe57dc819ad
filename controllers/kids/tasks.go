package kids

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/scheduler"
	"chorepoints/utils"
)

// ListTasksHandler returns the kid's own tasks plus the family's hanging
// tasks still open for pickup. Templates are excluded; kids only ever see
// concrete work.
func ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	q := database.DB.
		Where("family_id = ?", familyID).
		Where("is_recurring = ? OR parent_task_id IS NOT NULL", false).
		Where("status <> ?", models.TaskStatusArchived).
		Where("assignee_id = ? OR (task_type = ? AND available_for_pickup = ?)",
			userID, models.TaskTypeHanging, true)
	if st := r.URL.Query().Get("status"); st != "" {
		q = q.Where("status = ?", st)
	}

	var tasks []models.Task
	if err := q.Order("due_date IS NULL, due_date ASC, id DESC").Limit(200).Find(&tasks).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: tasks})
}

// StartTaskHandler moves one of the kid's pending or rejected tasks to
// in_progress.
func StartTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}

	res := database.DB.Model(&models.Task{}).
		Where("id = ? AND assignee_id = ? AND status IN ?", taskID, userID,
			[]string{models.TaskStatusPending, models.TaskStatusRejected}).
		Update("status", models.TaskStatusInProgress)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Task cannot be started"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task started"})
}

// CompleteTaskHandler submits the kid's work for parental review. Late
// submissions are accepted; any penalty already applied for the missed
// deadline stays in the ledger.
func CompleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}

	var task models.Task
	if err := database.DB.First(&task, taskID).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}

	res := database.DB.Model(&models.Task{}).
		Where("id = ? AND assignee_id = ? AND status IN ?", taskID, userID,
			[]string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusRejected}).
		Update("status", models.TaskStatusCompleted)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Task cannot be completed"})
		return
	}

	notify.Default().Dispatch(notify.Event{
		Kind: notify.EventTaskCompleted, UserID: task.CreatedByID,
		Message: fmt.Sprintf("%s is done and waiting for review", task.Title),
	})
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task submitted for review"})
}

// PickupTaskHandler claims a hanging task. Exactly one of N concurrent
// claimants wins; the rest get a 409.
func PickupTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}

	var task models.Task
	if err := database.DB.First(&task, taskID).Error; err != nil || task.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	claimed, err := sch.PickupHangingTask(r.Context(), taskID, userID)
	switch {
	case errors.Is(err, scheduler.ErrAlreadyClaimed):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Someone else got it first"})
		return
	case errors.Is(err, scheduler.ErrTaskNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	case err != nil:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task is yours", Data: claimed})
}

// CatchupHandler runs the family's materialization and penalty passes on app
// open. A short gate deduplicates bursts: only the first call per minute does
// work, the rest return the gate's remaining TTL.
func CatchupHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	won, remain := middleware.AcquireCatchupSlot(userID, time.Minute)
	if !won {
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
			Success: true,
			Message: "Already up to date",
			Data:    map[string]interface{}{"retry_after_seconds": int(remain.Seconds())},
		})
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	stats, err := sch.CatchUpFamily(r.Context(), familyID, time.Now())
	if err != nil {
		middleware.ReleaseCatchupSlot(userID)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Catch-up failed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Caught up", Data: stats})
}

func pathTaskID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid task id"})
		return 0, false
	}
	return uint(id), true
}
