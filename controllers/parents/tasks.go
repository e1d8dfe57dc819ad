package parents

import (
	"errors"
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

type CreateTaskRequest struct {
	Title         string     `json:"title" validate:"required"`
	Description   string     `json:"description,omitempty"`
	Points        int        `json:"points"`
	PenaltyPoints int        `json:"penalty_points,omitempty"`
	TaskType      string     `json:"task_type,omitempty"`
	AssigneeID    *uint      `json:"assignee_id,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`

	IsRecurring         bool   `json:"is_recurring,omitempty"`
	RecurringPattern    string `json:"recurring_pattern,omitempty" validate:"pattern"`
	RecurringTime       string `json:"recurring_time,omitempty" validate:"hhmm"`
	RecurringDays       string `json:"recurring_days,omitempty"`
	RecurringDayOfMonth int    `json:"recurring_day_of_month,omitempty"`
}

// CreateTaskHandler creates a one-off task, a hanging task open for pickup, or
// a recurring template. Templates never carry work themselves; instances are
// materialized from them by the scheduler.
func CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	var req CreateTaskRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.Points <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Points must be positive"})
		return
	}
	taskType := req.TaskType
	if taskType == "" {
		taskType = models.TaskTypeAssigned
	}
	if taskType != models.TaskTypeAssigned && taskType != models.TaskTypeHanging {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "task_type must be assigned or hanging"})
		return
	}
	if taskType == models.TaskTypeAssigned && req.AssigneeID == nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Assigned tasks need an assignee"})
		return
	}
	if taskType == models.TaskTypeHanging && req.AssigneeID != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Hanging tasks start unassigned"})
		return
	}

	db := database.DB

	if req.AssigneeID != nil {
		var kid models.User
		if err := db.Where("id = ? AND family_id = ? AND role = ?",
			*req.AssigneeID, familyID, models.RoleKid).First(&kid).Error; err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Assignee is not a kid in your family"})
			return
		}
	}

	task := models.Task{
		FamilyID:      familyID,
		Title:         req.Title,
		Description:   req.Description,
		Points:        req.Points,
		PenaltyPoints: req.PenaltyPoints,
		TaskType:      taskType,
		AssigneeID:    req.AssigneeID,
		CreatedByID:   userID,
		Status:        models.TaskStatusPending,
	}

	if req.IsRecurring {
		task.IsRecurring = true
		task.RecurringPattern = req.RecurringPattern
		task.RecurringTime = req.RecurringTime
		task.RecurringDays = req.RecurringDays
		task.RecurringDayOfMonth = req.RecurringDayOfMonth
		task.Enabled = true

		sched, err := scheduler.ParseSchedule(&task)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid schedule", Data: err.Error()})
			return
		}
		if err := sched.ValidateLeadTime(time.Now()); err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Next occurrence is too soon, allow at least 30 minutes"})
			return
		}
	} else {
		task.DueDate = req.DueDate
		task.AvailableForPickup = taskType == models.TaskTypeHanging
	}

	if err := db.Create(&task).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Could not create task"})
		return
	}

	if task.AssigneeID != nil {
		notify.Default().Dispatch(notify.Event{
			Kind:    notify.EventInstanceCreated,
			UserID:  *task.AssigneeID,
			Message: "New chore: " + task.Title,
		})
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Task created", Data: task})
}

// ListTasksHandler returns the family's tasks. Filters: ?status=, ?kid=,
// ?templates=true to list only recurring definitions.
func ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	q := database.DB.Where("family_id = ?", familyID)
	if r.URL.Query().Get("templates") == "true" {
		q = q.Where("is_recurring = ? AND parent_task_id IS NULL", true)
	}
	if st := r.URL.Query().Get("status"); st != "" {
		q = q.Where("status = ?", st)
	}
	if kid := r.URL.Query().Get("kid"); kid != "" {
		id, err := strconv.Atoi(kid)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid kid id"})
			return
		}
		q = q.Where("assignee_id = ?", id)
	}

	var tasks []models.Task
	if err := q.Order("due_date IS NULL, due_date ASC, id DESC").Limit(200).Find(&tasks).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: tasks})
}

// UpdateTaskHandler applies a scoped edit. ?scope=single edits one row (for a
// template: the definition only); ?scope=series edits the template and
// propagates the shared fields to unfinished instances.
func UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, scope, ok := taskIDAndScope(w, r)
	if !ok {
		return
	}
	familyID, _ := utils.GetFamilyID(r)
	if !taskInFamily(w, taskID, familyID) {
		return
	}

	var edit scheduler.TaskEdit
	if err := middleware.ValidateJSON(w, r, &edit); err != nil {
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	if err := sch.ApplyScopedEdit(r.Context(), taskID, scope, edit, time.Now()); err != nil {
		writeSchedulerError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task updated"})
}

// DeleteTaskHandler applies a scoped delete: archive one instance, or disable
// a template (series scope also archives its unfinished instances). Finished
// instances are kept as history.
func DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, scope, ok := taskIDAndScope(w, r)
	if !ok {
		return
	}
	familyID, _ := utils.GetFamilyID(r)
	if !taskInFamily(w, taskID, familyID) {
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	if err := sch.ApplyScopedDelete(r.Context(), taskID, scope); err != nil {
		writeSchedulerError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task removed"})
}

func taskIDAndScope(w http.ResponseWriter, r *http.Request) (uint, string, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid task id"})
		return 0, "", false
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = scheduler.ScopeSingle
	}
	if scope != scheduler.ScopeSingle && scope != scheduler.ScopeSeries {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "scope must be single or series"})
		return 0, "", false
	}
	return uint(id), scope, true
}

func taskInFamily(w http.ResponseWriter, taskID, familyID uint) bool {
	var task models.Task
	if err := database.DB.First(&task, taskID).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return false
	}
	if task.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return false
	}
	return true
}

func writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
	case errors.Is(err, scheduler.ErrNotEditable):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Finished tasks cannot be changed"})
	case errors.Is(err, scheduler.ErrInvalidSchedule):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Next occurrence is too soon, allow at least 30 minutes"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
	}
}
