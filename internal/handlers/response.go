package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/services"
	"lalaquiz-backend/internal/sharing"
)

const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return errorRespWithFields(code, message, nil, r)
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID(r),
		},
	}
}

// decodeBody reads a JSON body into v, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := services.ErrorCode(err)

	switch code {
	case "VALIDATION_ERROR":
		var verr *services.ValidationError
		errors.As(err, &verr)
		writeJSON(w, http.StatusBadRequest, errorRespWithFields(code, "Validation failed", verr.Fields, r))
	case "NOT_FOUND":
		writeJSON(w, http.StatusNotFound, errorResp(code, notFoundMessage(err), r))
	case "SHARE_TOO_LARGE":
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp(code, "Quiz is too large for a link. Try exporting as JSON.", r))
	case "INVALID_SHARE_LINK":
		writeJSON(w, http.StatusBadRequest, errorResp(code, "Invalid or expired shared link.", r))
	case "RATE_LIMITED":
		writeJSON(w, http.StatusTooManyRequests, errorResp(code, "The quiz generator is busy. Please try again shortly.", r))
	case "PROVIDER_UNAVAILABLE":
		writeJSON(w, http.StatusServiceUnavailable, errorResp(code, providerMessage(err), r))
	default:
		if errors.Is(err, sharing.ErrEncodeFailure) {
			writeJSON(w, http.StatusInternalServerError, errorResp(code, "Failed to create share link.", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp(code, "An unexpected error occurred", r))
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrNothingMissed):
		return "No missed questions to retake"
	case errors.Is(err, services.ErrNoQuizData):
		return "Session has no quiz data"
	}
	return "Session not found"
}

func providerMessage(err error) string {
	if errors.Is(err, services.ErrMissingCredential) {
		return "Quiz generation is not configured on this server"
	}
	return "The quiz generator returned an unusable response. Please try again."
}
