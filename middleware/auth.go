package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"chorepoints/models"
	"chorepoints/utils"
)

func writeJSON(w http.ResponseWriter, status int, resp map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func authenticate(w http.ResponseWriter, r *http.Request) (uint, string, uint, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Unauthorized",
		})
		return 0, "", 0, false
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	claims, err := utils.ValidateAccessToken(tokenStr)
	if err != nil {
		msg := "Invalid token"
		if strings.Contains(err.Error(), "expired") {
			msg = "Session expired, please sign in again"
		}
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": msg,
		})
		return 0, "", 0, false
	}

	var userID uint
	if raw, ok := claims["id"].(float64); ok {
		userID = uint(raw)
	}
	role, _ := claims["role"].(string)
	var familyID uint
	if raw, ok := claims["family"].(float64); ok {
		familyID = uint(raw)
	}
	if userID == 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Invalid token",
		})
		return 0, "", 0, false
	}
	return userID, role, familyID, true
}

func withIdentity(r *http.Request, userID uint, role string, familyID uint) *http.Request {
	ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
	ctx = context.WithValue(ctx, utils.UserRoleKey, role)
	ctx = context.WithValue(ctx, utils.FamilyIDKey, familyID)
	return r.WithContext(ctx)
}

// KidAuthMiddleware guards child-facing endpoints. Parents are blocked: a
// parent approving their own kid-side actions would bypass the approval flow.
func KidAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, familyID, ok := authenticate(w, r)
		if !ok {
			return
		}
		if role != models.RoleKid {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"success": false,
				"message": "Access denied",
			})
			return
		}
		next.ServeHTTP(w, withIdentity(r, userID, role, familyID))
	})
}

// ParentAuthMiddleware guards parent-facing endpoints.
func ParentAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, familyID, ok := authenticate(w, r)
		if !ok {
			return
		}
		if role != models.RoleParent {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"success": false,
				"message": "Access denied",
			})
			return
		}
		next.ServeHTTP(w, withIdentity(r, userID, role, familyID))
	})
}

// AuthMiddleware accepts any authenticated family member.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, familyID, ok := authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, withIdentity(r, userID, role, familyID))
	})
}
