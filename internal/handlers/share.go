package handlers

import (
	"net/http"

	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/services"
	"lalaquiz-backend/internal/sharing"
)

type ShareHandler struct {
	sessions *services.SessionService
	baseURL  string
}

func NewShareHandler(sessions *services.SessionService, baseURL string) *ShareHandler {
	return &ShareHandler{sessions: sessions, baseURL: baseURL}
}

// LoadShared imports the quiz in the share parameter into the caller's
// history. The response carries the page URL with the parameter removed so
// a reload does not import it again.
func (h *ShareHandler) LoadShared(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(sharing.ShareParam)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{sharing.ShareParam: "is required"}, r))
		return
	}

	session, err := h.sessions.LoadShared(r.Context(), middleware.GetUserID(r.Context()), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	page := r.URL.Query().Get("page")
	if page == "" {
		page = h.baseURL
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session":   session,
		"clean_url": sharing.StripShareParam(page),
		"message":   "Shared quiz loaded successfully!",
	})
}

// Encode shares a quiz that is not (or not yet) saved in history.
func (h *ShareHandler) Encode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quiz *models.Quiz `json:"quiz"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quiz == nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"quiz": "is required"}, r))
		return
	}

	shareURL, err := h.sessions.ShareQuiz(r.Context(), middleware.GetUserID(r.Context()), req.Quiz)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeShareLink(w, shareURL)
}
