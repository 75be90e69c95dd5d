package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"lalaquiz-backend/internal/models"
)

const submitQuizTool = "submit_quiz"

// OpenAIGenerator asks a chat completion model to call submit_quiz with the
// generated study set. Images are sent as data URLs; other files are
// converted to text.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	files  *FileExtractService
}

func NewOpenAIGenerator(apiKey, model string, files *FileExtractService) *OpenAIGenerator {
	if files == nil {
		files = NewFileExtractService()
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		files:  files,
	}
}

func (g *OpenAIGenerator) Name() string { return "openai:" + g.model }

func (g *OpenAIGenerator) Close() error { return nil }

func openAIInline(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}

func (g *OpenAIGenerator) Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error) {
	text, images, err := g.files.Flatten(src, openAIInline)
	if err != nil {
		return nil, err
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	block := sourceTextBlock(text)
	if len(images) == 0 {
		user.Content = block
	} else {
		if block != "" {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: block,
			})
		}
		for _, img := range images {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data)),
				},
			})
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildQuizPrompt(settings)},
			user,
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        submitQuizTool,
					Description: "Submit the generated study set",
					Parameters:  quizJSONSchema(),
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: submitQuizTool},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	verboseLog("Received response from %s with %d choices", g.model, len(resp.Choices))
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}

	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == submitQuizTool {
			return parseQuizResponse(call.Function.Arguments)
		}
	}
	return parseQuizResponse(msg.Content)
}

func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}

// quizJSONSchema describes the quiz shape as a JSON schema map.
func quizJSONSchema() map[string]interface{} {
	str := map[string]interface{}{"type": "string"}
	strList := map[string]interface{}{"type": "array", "items": str}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"metadata": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source":              str,
					"number_of_questions": map[string]interface{}{"type": "integer"},
					"difficulty":          str,
					"types":               strList,
				},
				"required": []string{"source", "number_of_questions", "difficulty", "types"},
			},
			"summary":  str,
			"keywords": strList,
			"study_plan": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"day":      str,
						"topic":    str,
						"activity": str,
					},
					"required": []string{"day", "topic", "activity"},
				},
			},
			"questions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id": map[string]interface{}{"type": "integer"},
						"type": map[string]interface{}{
							"type": "string",
							"enum": []string{"multiple_choice", "true_false", "identification", "fill_in_blank"},
						},
						"question":       str,
						"options":        strList,
						"correct_answer": str,
						"explanation":    str,
					},
					"required": []string{"id", "type", "question", "correct_answer"},
				},
			},
		},
		"required": []string{"metadata", "questions", "summary", "keywords"},
	}
}
