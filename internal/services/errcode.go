package services

import (
	"errors"

	"lalaquiz-backend/internal/sharing"
)

// ErrorCode maps a service error to the code clients see in error envelopes
// and job error events.
func ErrorCode(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoQuizData), errors.Is(err, ErrNothingMissed):
		return "NOT_FOUND"
	case errors.Is(err, sharing.ErrSizeLimitExceeded):
		return "SHARE_TOO_LARGE"
	case errors.Is(err, sharing.ErrInvalidToken):
		return "INVALID_SHARE_LINK"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrMalformedResponse):
		return "PROVIDER_UNAVAILABLE"
	}
	return "INTERNAL_ERROR"
}

// Retryable reports whether running the same request again could succeed.
func Retryable(err error) bool {
	switch ErrorCode(err) {
	case "VALIDATION_ERROR", "NOT_FOUND", "SHARE_TOO_LARGE", "INVALID_SHARE_LINK":
		return false
	}
	return !errors.Is(err, ErrMissingCredential)
}
