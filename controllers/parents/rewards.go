package parents

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/utils"
)

type RewardRequest struct {
	Name        string `json:"name" validate:"required,nameok"`
	Description string `json:"description,omitempty"`
	Cost        int    `json:"cost"`
}

func CreateRewardHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	var req RewardRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.Cost <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cost must be positive"})
		return
	}

	reward := models.Reward{
		FamilyID:    familyID,
		Name:        req.Name,
		Description: req.Description,
		Cost:        req.Cost,
		Active:      true,
	}
	if err := database.DB.Create(&reward).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Could not create reward"})
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Reward created", Data: reward})
}

func ListRewardsHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	var rewards []models.Reward
	if err := database.DB.Where("family_id = ?", familyID).
		Order("cost ASC").Find(&rewards).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: rewards})
}

func UpdateRewardHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)
	rewardID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req RewardRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.Cost <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cost must be positive"})
		return
	}

	res := database.DB.Model(&models.Reward{}).
		Where("id = ? AND family_id = ?", rewardID, familyID).
		Updates(map[string]interface{}{"name": req.Name, "description": req.Description, "cost": req.Cost})
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Reward not found"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Reward updated"})
}

// DeleteRewardHandler deactivates a reward. Past redemptions keep pointing at
// the row, so it is never hard-deleted.
func DeleteRewardHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)
	rewardID, ok := pathID(w, r)
	if !ok {
		return
	}

	res := database.DB.Model(&models.Reward{}).
		Where("id = ? AND family_id = ?", rewardID, familyID).
		Update("active", false)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Reward not found"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Reward deactivated"})
}

// ListRedemptionsHandler lists the family's redemption requests, newest first.
// Filter with ?status=requested|granted|denied.
func ListRedemptionsHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	q := database.DB.Model(&models.Redemption{}).
		Joins("JOIN rewards ON rewards.id = redemptions.reward_id").
		Where("rewards.family_id = ?", familyID).
		Preload("Reward")
	if st := r.URL.Query().Get("status"); st != "" {
		q = q.Where("redemptions.status = ?", st)
	}

	var redemptions []models.Redemption
	if err := q.Order("redemptions.id DESC").Limit(100).Find(&redemptions).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: redemptions})
}

// GrantRedemptionHandler marks a requested redemption granted. Points were
// already held at request time, so nothing moves here.
func GrantRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)
	redemptionID, ok := pathID(w, r)
	if !ok {
		return
	}

	red, ok := loadFamilyRedemption(w, redemptionID, familyID)
	if !ok {
		return
	}

	res := database.DB.Model(&models.Redemption{}).
		Where("id = ? AND status = ?", red.ID, models.RedemptionRequested).
		Update("status", models.RedemptionGranted)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Redemption was already decided"})
		return
	}

	notify.Default().Dispatch(notify.Event{Kind: notify.EventRedemption, UserID: red.UserID, Message: "Your reward was granted"})
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Redemption granted"})
}

// DenyRedemptionHandler denies a requested redemption and refunds the held
// points. The requested -> denied transition is guarded, so the refund happens
// at most once.
func DenyRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)
	redemptionID, ok := pathID(w, r)
	if !ok {
		return
	}

	red, ok := loadFamilyRedemption(w, redemptionID, familyID)
	if !ok {
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Redemption{}).
			Where("id = ? AND status = ?", red.ID, models.RedemptionRequested).
			Update("status", models.RedemptionDenied)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return creditPoints(tx, red.UserID, red.Cost, models.EntryKindRefund, nil,
			fmt.Sprintf("Refund: redemption %s denied", red.RefCode))
	})
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Redemption was already decided"})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}

	notify.Default().Dispatch(notify.Event{Kind: notify.EventRedemption, UserID: red.UserID, Message: "Your reward request was denied, points refunded"})
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Redemption denied and refunded"})
}

func loadFamilyRedemption(w http.ResponseWriter, id, familyID uint) (*models.Redemption, bool) {
	var red models.Redemption
	if err := database.DB.Preload("Reward").First(&red, id).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Redemption not found"})
		return nil, false
	}
	if red.Reward == nil || red.Reward.FamilyID != familyID {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Redemption not found"})
		return nil, false
	}
	return &red, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

func decodeOptional(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
