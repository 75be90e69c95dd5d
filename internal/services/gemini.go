package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"lalaquiz-backend/internal/models"
)

// GeminiGenerator asks Gemini for a quiz constrained by a JSON response
// schema. PDFs, images and plain text go to the model inline; other files are
// converted to text first.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	files  *FileExtractService
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = quizResponseSchema()

	return &GeminiGenerator{
		client: client,
		model:  model,
		name:   modelName,
		files:  NewFileExtractService(),
	}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini:" + g.name }

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func geminiInline(mimeType string) bool {
	return mimeType == mimePDF ||
		strings.HasPrefix(mimeType, "image/") ||
		strings.HasPrefix(mimeType, "audio/") ||
		mimeType == "text/plain"
}

func (g *GeminiGenerator) Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error) {
	text, inline, err := g.files.Flatten(src, geminiInline)
	if err != nil {
		return nil, err
	}

	parts := []genai.Part{genai.Text(buildQuizPrompt(settings))}
	if block := sourceTextBlock(text); block != "" {
		parts = append(parts, genai.Text(block))
	}
	for _, att := range inline {
		parts = append(parts, genai.Blob{MIMEType: att.MimeType, Data: att.Data})
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	for i, cand := range resp.Candidates {
		verboseLog("Gemini Candidate %d: FinishReason=%s, TokenCount=%d", i, cand.FinishReason, cand.TokenCount)
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini stopped due to %s", cand.FinishReason)
		}
	}

	return parseQuizResponse(extractText(resp))
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("Gemini API error: %w", err)
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

func quizResponseSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	strList := &genai.Schema{Type: genai.TypeArray, Items: str}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"metadata": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"source":              str,
					"number_of_questions": {Type: genai.TypeInteger},
					"difficulty":          str,
					"types":               strList,
				},
				Required: []string{"source", "number_of_questions", "difficulty", "types"},
			},
			"summary":  str,
			"keywords": strList,
			"study_plan": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"day":      str,
						"topic":    str,
						"activity": str,
					},
				},
			},
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id": {Type: genai.TypeInteger},
						"type": {
							Type: genai.TypeString,
							Enum: []string{
								string(models.MultipleChoice),
								string(models.TrueFalse),
								string(models.Identification),
								string(models.FillInBlank),
							},
						},
						"question":       str,
						"options":        {Type: genai.TypeArray, Items: str, Nullable: true},
						"correct_answer": str,
						"explanation":    {Type: genai.TypeString, Nullable: true},
					},
					Required: []string{"id", "type", "question", "correct_answer"},
				},
			},
		},
		Required: []string{"metadata", "questions", "summary", "keywords"},
	}
}
