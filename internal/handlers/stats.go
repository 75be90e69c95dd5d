package handlers

import (
	"net/http"

	"lalaquiz-backend/internal/gamification"
	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/services"
)

type StatsHandler struct {
	sessions *services.SessionService
}

func NewStatsHandler(sessions *services.SessionService) *StatsHandler {
	return &StatsHandler{sessions: sessions}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":             stats,
		"xp_for_next_level": gamification.XPForNextLevel(stats.Level),
	})
}

func (h *StatsHandler) AwardXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activity gamification.Activity `json:"activity"`
		Answered int                   `json:"answered"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	stats, err := h.sessions.AwardXP(r.Context(), middleware.GetUserID(r.Context()), req.Activity, req.Answered)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}
