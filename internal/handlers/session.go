package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/scoring"
	"lalaquiz-backend/internal/services"
	"lalaquiz-backend/internal/sharing"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	history, err := h.sessions.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": history})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.sessions.Rename(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

func (h *SessionHandler) Share(w http.ResponseWriter, r *http.Request) {
	shareURL, err := h.sessions.Share(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeShareLink(w, shareURL)
}

func writeShareLink(w http.ResponseWriter, shareURL string) {
	token, _ := sharing.TokenFromURL(shareURL)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     shareURL,
		"token":   token,
		"message": "Link copied to clipboard!",
	})
}

type answersRequest struct {
	Answers     scoring.Answers    `json:"answers"`
	ScoringType models.ScoringType `json:"scoring_type"`
}

func (h *SessionHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := h.sessions.Score(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Answers, req.ScoringType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *SessionHandler) RetakeMissed(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	quiz, err := h.sessions.RetakeMissed(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Answers)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quiz": quiz})
}

// Export streams the session as a download. CSV exports take the user's
// answers as a JSON object in the answers query parameter.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")

	var answers scoring.Answers
	if raw := r.URL.Query().Get("answers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"answers": "must be a JSON object of question id to answer"}, r))
			return
		}
	}

	id := chi.URLParam(r, "id")
	data, contentType, err := h.sessions.Export(r.Context(), middleware.GetUserID(r.Context()), id, format, answers)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	ext := "json"
	if contentType == "text/csv" {
		ext = "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz-%s.%s"`, id, ext))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
