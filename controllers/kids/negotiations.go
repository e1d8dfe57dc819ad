package kids

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/scheduler"
	"chorepoints/utils"
)

type SplitOfferRequest struct {
	TaskID      uint `json:"task_id"`
	ToUserID    uint `json:"to_user_id"`
	SplitPoints int  `json:"split_points"`
}

// CreateSplitOfferHandler opens a point-split offer to a sibling: take the
// task over, and on approval the reward is divided.
func CreateSplitOfferHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	var req SplitOfferRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.TaskID == 0 || req.ToUserID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "task_id and to_user_id are required"})
		return
	}
	if req.ToUserID == userID {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cannot offer a task to yourself"})
		return
	}

	var sibling models.User
	if err := database.DB.Where("id = ? AND family_id = ? AND role = ?",
		req.ToUserID, familyID, models.RoleKid).First(&sibling).Error; err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Recipient is not a kid in your family"})
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	n, err := sch.CreateSplitOffer(r.Context(), req.TaskID, userID, req.ToUserID, req.SplitPoints, time.Now())
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Offer sent", Data: n})
}

type RenegotiateRequest struct {
	TaskID      uint `json:"task_id"`
	OfferPoints int  `json:"offer_points"`
}

// CreateRenegotiationHandler asks the task's creator to change its point
// value. The parent accepts or rejects like any other negotiation.
func CreateRenegotiationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	var req RenegotiateRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.TaskID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "task_id is required"})
		return
	}

	var task models.Task
	if err := database.DB.First(&task, req.TaskID).Error; err != nil || task.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	n, err := sch.CreateRenegotiation(r.Context(), req.TaskID, userID, task.CreatedByID, req.OfferPoints, time.Now())
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Request sent", Data: n})
}

// ListNegotiationsHandler returns negotiations the user sent or received,
// newest first.
func ListNegotiationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)

	var items []models.Negotiation
	if err := database.DB.
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("id DESC").Limit(100).Find(&items).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}

	// Pending rows past expiry read as expired; the stored status catches up
	// lazily on the next transition attempt.
	now := time.Now()
	for i := range items {
		if items[i].Status == models.NegotiationPending && !now.Before(items[i].ExpiresAt) {
			items[i].Status = models.NegotiationExpired
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: items})
}

func AcceptNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	code := mux.Vars(r)["code"]

	sch := scheduler.New(database.DB, notify.Default())
	n, err := sch.AcceptNegotiation(r.Context(), code, userID, time.Now())
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Offer accepted", Data: n})
}

func RejectNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	code := mux.Vars(r)["code"]

	sch := scheduler.New(database.DB, notify.Default())
	if err := sch.ResolveNegotiation(r.Context(), code, userID, models.NegotiationRejected, time.Now()); err != nil {
		writeNegotiationError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Offer rejected"})
}

func WithdrawNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	code := mux.Vars(r)["code"]

	sch := scheduler.New(database.DB, notify.Default())
	if err := sch.ResolveNegotiation(r.Context(), code, userID, models.NegotiationWithdrawn, time.Now()); err != nil {
		writeNegotiationError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Offer withdrawn"})
}

func writeNegotiationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNegotiationClosed):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "This offer is no longer open"})
	case errors.Is(err, scheduler.ErrTaskNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
	case errors.Is(err, scheduler.ErrNotEditable):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Finished tasks cannot be negotiated"})
	case errors.Is(err, scheduler.ErrInsufficientPoints):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Split exceeds the task's points"})
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
	}
}
