package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"lalaquiz-backend/internal/middleware"
)

type AuthHandler struct {
	jwt *middleware.JWTAuth
}

func NewAuthHandler(jwt *middleware.JWTAuth) *AuthHandler {
	return &AuthHandler{jwt: jwt}
}

// Guest issues a guest token. A caller presenting a still-valid token keeps
// its user id, so history and stats survive the renewal.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	userID := uuid.Nil
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if id, err := h.jwt.ParseUserID(bearer); err == nil {
			userID = id
		}
	}

	token, userID, err := h.jwt.GenerateGuestToken(userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue token", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"user_id":    userID,
		"expires_in": int(middleware.GuestTokenTTL.Seconds()),
	})
}
