package auth

import (
	"crypto/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/utils"
)

type RegisterRequest struct {
	Name       string `json:"name" validate:"required,nameok"`
	Username   string `json:"username" validate:"required,username"`
	Password   string `json:"password" validate:"required,pwdmin"`
	FamilyName string `json:"family_name,omitempty" validate:"nameok"`
	InviteCode string `json:"invite_code,omitempty"`
}

// RegisterHandler creates a parent account. With family_name a new family is
// created; with invite_code the parent joins an existing one. Kid accounts are
// created by a parent, never through this endpoint.
func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.FamilyName == "" && req.InviteCode == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Provide family_name or invite_code"})
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

	var user models.User
	err = db.Transaction(func(tx *gorm.DB) error {
		var family models.Family
		if req.InviteCode != "" {
			if err := tx.Where("invite_code = ?", strings.ToUpper(strings.TrimSpace(req.InviteCode))).
				First(&family).Error; err != nil {
				return err
			}
		} else {
			family = models.Family{Name: req.FamilyName, InviteCode: newInviteCode()}
			if err := tx.Create(&family).Error; err != nil {
				return err
			}
		}

		user = models.User{
			FamilyID: family.ID,
			Name:     req.Name,
			Username: req.Username,
			Password: string(hashed),
			Role:     models.RoleParent,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invite code not found"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Registration failed"})
		return
	}

	accessToken, err := utils.GenerateAccessToken(user.ID, user.Role, user.FamilyID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Registration failed"})
		return
	}
	refreshID, err := utils.GenerateRefreshToken(user.ID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Registration failed"})
		return
	}

	var family models.Family
	_ = db.First(&family, user.FamilyID).Error

	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{
		Success: true,
		Message: "Account created",
		Data: map[string]interface{}{
			"access_token":  accessToken,
			"access_expire": time.Now().Add(15 * time.Minute).UTC().Format(time.RFC3339),
			"refresh_token": refreshID,
			"user":          user,
			"family": map[string]interface{}{
				"id":          family.ID,
				"name":        family.Name,
				"invite_code": family.InviteCode,
			},
		},
	})
}

func newInviteCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
