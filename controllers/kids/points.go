package kids

import (
	"net/http"

	"chorepoints/database"
	"chorepoints/models"
	"chorepoints/utils"
)

// PointsHandler returns the kid's current balance and recent ledger entries.
// The balance comes from the users row; the ledger is the audit trail behind
// it.
func PointsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)

	var user models.User
	if err := database.DB.Select("points").First(&user, userID).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}

	var entries []models.PointEntry
	if err := database.DB.Where("user_id = ?", userID).
		Order("id DESC").Limit(50).Find(&entries).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "OK",
		Data: map[string]interface{}{
			"points": user.Points,
			"ledger": entries,
		},
	})
}
