package parents

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/utils"
)

type CreateKidRequest struct {
	Name     string `json:"name" validate:"required,nameok"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,pwdmin"`
}

// CreateKidHandler creates a kid account inside the parent's family.
func CreateKidHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	var req CreateKidRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	db := database.DB
	var existing models.User
	if err := db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Username is already taken"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}

	kid := models.User{
		FamilyID: familyID,
		Name:     req.Name,
		Username: req.Username,
		Password: string(hashed),
		Role:     models.RoleKid,
	}
	if err := db.Create(&kid).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Could not create account"})
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Kid account created", Data: kid})
}

// ListKidsHandler returns the family's kid accounts with their balances.
func ListKidsHandler(w http.ResponseWriter, r *http.Request) {
	familyID, _ := utils.GetFamilyID(r)

	var kids []models.User
	if err := database.DB.
		Where("family_id = ? AND role = ?", familyID, models.RoleKid).
		Order("name ASC").Find(&kids).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: kids})
}
