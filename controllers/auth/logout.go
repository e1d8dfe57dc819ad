package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chorepoints/database"
	"chorepoints/models"
	"chorepoints/utils"
)

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutHandler revokes the current access token's jti and, when provided, the
// refresh token. Runs behind the auth middleware.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	// Body is optional; a bare POST still revokes the access token.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	authz := r.Header.Get("Authorization")
	tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	if claims, err := utils.ValidateAccessToken(tokenStr); err == nil {
		jti, _ := claims["jti"].(string)
		ttl := 15 * time.Minute
		if exp, ok := claims["exp"].(float64); ok {
			if until := time.Until(time.Unix(int64(exp), 0)); until > 0 {
				ttl = until
			}
		}
		_ = utils.RevokeJTI(jti, ttl)
	}

	if req.RefreshToken != "" {
		_ = database.DB.Model(&models.RefreshToken{}).
			Where("id = ?", req.RefreshToken).
			Update("revoked", true).Error
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Signed out"})
}

// LogoutAllHandler revokes every refresh token of the authenticated user.
func LogoutAllHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserID(r)
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	if err := database.DB.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Signed out everywhere"})
}
