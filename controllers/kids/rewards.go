package kids

import (
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/utils"
)

// ListRewardsHandler shows the rewards a kid can spend points on.
func ListRewardsHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	var rewards []models.Reward
	if err := database.DB.Where("family_id = ? AND active = ?", familyID, true).
		Order("cost ASC").Find(&rewards).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: rewards})
}

type RedeemRequest struct {
	RewardID uint `json:"reward_id"`
}

// RedeemRewardHandler places a redemption request and holds the points
// immediately. The hold is a conditional deduction (points >= cost), so two
// concurrent redemptions cannot overspend; a denied request refunds the hold.
func RedeemRewardHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)
	familyID, _ := utils.GetFamilyID(r)

	var req RedeemRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.RewardID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "reward_id is required"})
		return
	}

	db := database.DB
	var reward models.Reward
	if err := db.Where("id = ? AND family_id = ? AND active = ?",
		req.RewardID, familyID, true).First(&reward).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Reward not found"})
		return
	}

	var redemption models.Redemption
	insufficient := false
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND points >= ?", userID, reward.Cost).
			Update("points", gorm.Expr("points - ?", reward.Cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			insufficient = true
			return gorm.ErrRecordNotFound
		}

		var after models.User
		if err := tx.Select("points").First(&after, userID).Error; err != nil {
			return err
		}

		redemption = models.Redemption{
			RewardID: reward.ID,
			UserID:   userID,
			Cost:     reward.Cost,
			RefCode:  utils.GenerateRefCode(userID),
			Status:   models.RedemptionRequested,
		}
		if err := tx.Create(&redemption).Error; err != nil {
			return err
		}

		entry := models.PointEntry{
			UserID:   userID,
			Delta:    -reward.Cost,
			Balance:  after.Points,
			RefCode:  redemption.RefCode,
			Kind:     models.EntryKindRedemption,
			RewardID: &reward.ID,
			Message:  fmt.Sprintf("Redemption requested: %s", reward.Name),
		}
		return tx.Create(&entry).Error
	})
	if insufficient {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Not enough points"})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Redemption failed"})
		return
	}

	var parent models.User
	if err := db.Where("family_id = ? AND role = ?", familyID, models.RoleParent).
		First(&parent).Error; err == nil {
		notify.Default().Dispatch(notify.Event{
			Kind: notify.EventRedemption, UserID: parent.ID,
			Message: fmt.Sprintf("Redemption request: %s (%d points)", reward.Name, reward.Cost),
		})
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Redemption requested", Data: redemption})
}

// ListMyRedemptionsHandler returns the kid's own redemption history.
func ListMyRedemptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)

	var items []models.Redemption
	if err := database.DB.Preload("Reward").
		Where("user_id = ?", userID).
		Order("id DESC").Limit(100).Find(&items).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: items})
}
