package services

import (
	"errors"
	"fmt"
	"testing"

	"lalaquiz-backend/internal/sharing"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		retryable bool
	}{
		{newValidationError("text", "is required"), "VALIDATION_ERROR", false},
		{ErrSessionNotFound, "NOT_FOUND", false},
		{fmt.Errorf("%w: 12 characters exceeds 10", sharing.ErrSizeLimitExceeded), "SHARE_TOO_LARGE", false},
		{sharing.ErrCorruptToken, "INVALID_SHARE_LINK", false},
		{sharing.ErrMalformedStructure, "INVALID_SHARE_LINK", false},
		{fmt.Errorf("gemini: %w", ErrRateLimited), "RATE_LIMITED", true},
		{ErrMissingCredential, "PROVIDER_UNAVAILABLE", false},
		{ErrMalformedResponse, "PROVIDER_UNAVAILABLE", true},
		{errors.New("boom"), "INTERNAL_ERROR", true},
	}

	for _, tc := range tests {
		if got := ErrorCode(tc.err); got != tc.code {
			t.Errorf("ErrorCode(%v) = %q, expected %q", tc.err, got, tc.code)
		}
		if got := Retryable(tc.err); got != tc.retryable {
			t.Errorf("Retryable(%v) = %v, expected %v", tc.err, got, tc.retryable)
		}
	}
}
