package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"lalaquiz-backend/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// PrepareRequest fills default settings and validates a generation request.
// It requires at least one of text, files or a YouTube URL.
func PrepareRequest(req *models.GenerateQuizRequest) error {
	if req.Settings == nil {
		s := models.DefaultSettings()
		req.Settings = &s
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate request: %w", err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = validationMessage(fe)
		}
		return &ValidationError{Fields: fields}
	}

	if strings.TrimSpace(req.Text) == "" && len(req.Files) == 0 && req.YouTubeURL == "" {
		return newValidationError("text", "provide text, files or a YouTube URL")
	}
	return nil
}

// fieldPath turns "GenerateQuizRequest.Settings.NumberOfQuestions" into
// "Settings.NumberOfQuestions".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}
