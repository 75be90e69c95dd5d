package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"lalaquiz-backend/internal/models"
)

// AnthropicGenerator sends the prompt as the system message and the source
// material, flattened to text, as the user message.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
	files  *FileExtractService
}

func NewAnthropicGenerator(apiKey, model string, files *FileExtractService) *AnthropicGenerator {
	if files == nil {
		files = NewFileExtractService()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicGenerator{client: &client, model: model, files: files}
}

func (g *AnthropicGenerator) Name() string { return "anthropic:" + g.model }

func (g *AnthropicGenerator) Close() error { return nil }

func (g *AnthropicGenerator) Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error) {
	text, _, err := g.files.Flatten(src, nil)
	if err != nil {
		return nil, err
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   8192,
		Temperature: param.NewOpt(0.3),
		System: []anthropic.TextBlockParam{
			{Text: buildQuizPrompt(settings)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sourceTextBlock(text))),
		},
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	verboseLog("Anthropic usage: input=%d output=%d", message.Usage.InputTokens, message.Usage.OutputTokens)

	for _, block := range message.Content {
		if block.Type == "text" {
			return parseQuizResponse(block.Text)
		}
	}
	return nil, fmt.Errorf("%w: no text content in API response", ErrMalformedResponse)
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
	}
	return fmt.Errorf("Anthropic API error: %w", err)
}
