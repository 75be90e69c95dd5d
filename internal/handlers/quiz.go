package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/repository"
	"lalaquiz-backend/internal/services"
)

// JobQueue accepts generation work for background processing.
type JobQueue interface {
	Enqueue(ctx context.Context, userID uuid.UUID, req models.GenerateQuizRequest) (*models.Job, error)
}

type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type QuizHandler struct {
	sessions *services.SessionService
	queue    JobQueue
	jobs     JobReader
}

// NewQuizHandler wires generation. With a nil queue, generation runs inline
// and the request waits for the finished session.
func NewQuizHandler(sessions *services.SessionService, queue JobQueue, jobs JobReader) *QuizHandler {
	return &QuizHandler{sessions: sessions, queue: queue, jobs: jobs}
}

func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuizRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := services.PrepareRequest(&req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())

	if h.queue != nil {
		job, err := h.queue.Enqueue(r.Context(), userID, req)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue generation", r))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID})
		return
	}

	session, err := h.sessions.Generate(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

func (h *QuizHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}
	if h.jobs == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) || (err == nil && job.UserID != middleware.GetUserID(r.Context())) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch job", r))
		return
	}

	// The request is left out: it can carry whole uploaded files.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            job.ID,
		"status":        job.Status,
		"session_id":    job.SessionID,
		"retry_count":   job.RetryCount,
		"error_code":    job.ErrorCode,
		"error_message": job.ErrorMessage,
		"created_at":    job.CreatedAt,
		"completed_at":  job.CompletedAt,
	})
}
