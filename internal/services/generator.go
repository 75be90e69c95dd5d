package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lalaquiz-backend/internal/answer"
	"lalaquiz-backend/internal/config"
	"lalaquiz-backend/internal/models"
)

var (
	ErrMissingCredential = errors.New("AI provider API key is missing")
	ErrRateLimited       = errors.New("AI provider quota exceeded, please wait a moment before trying again")
	ErrMalformedResponse = errors.New("failed to parse quiz data from AI response")
)

// Attachment is an uploaded file after base64 decoding.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Source is the material a quiz is generated from.
type Source struct {
	Text  string
	Files []Attachment
}

func (s Source) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Files) == 0
}

// Generator turns source material into a quiz. Implementations return errors
// matching ErrMissingCredential, ErrRateLimited or ErrMalformedResponse where
// they apply; anything else is an unknown provider failure.
type Generator interface {
	Name() string
	Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error)
	Close() error
}

// NewGenerator builds the generator selected by cfg.AIProvider. A provider
// without an API key still starts; every request to it fails with
// ErrMissingCredential.
func NewGenerator(ctx context.Context, cfg *config.Config, files *FileExtractService) (Generator, error) {
	if cfg.AIProvider != "mock" && cfg.ProviderAPIKey() == "" {
		log.Printf("WARNING: no API key configured for AI provider %q", cfg.AIProvider)
		return &unavailableGenerator{provider: cfg.AIProvider}, nil
	}

	var (
		g   Generator
		err error
	)
	switch cfg.AIProvider {
	case "gemini":
		g, err = NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		g = NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, files)
	case "anthropic":
		g = NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel, files)
	case "mock":
		g = NewMockGenerator()
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.AIProvider)
	}
	if err != nil {
		return nil, err
	}

	return NewRateLimitedGenerator(g, cfg.AIConcurrentRequests), nil
}

type unavailableGenerator struct {
	provider string
}

func (u *unavailableGenerator) Name() string { return u.provider }

func (u *unavailableGenerator) Generate(context.Context, Source, models.QuizSettings) (*models.Quiz, error) {
	return nil, fmt.Errorf("%w: set the key for %s", ErrMissingCredential, u.provider)
}

func (u *unavailableGenerator) Close() error { return nil }

// RateLimitedGenerator caps the number of in-flight provider calls with a
// token bucket.
type RateLimitedGenerator struct {
	next     Generator
	rateChan chan struct{}
	wait     time.Duration
}

func NewRateLimitedGenerator(next Generator, concurrent int) *RateLimitedGenerator {
	if concurrent < 1 {
		concurrent = 1
	}
	rateChan := make(chan struct{}, concurrent)
	for i := 0; i < concurrent; i++ {
		rateChan <- struct{}{}
	}
	return &RateLimitedGenerator{next: next, rateChan: rateChan, wait: 5 * time.Minute}
}

func (r *RateLimitedGenerator) Name() string { return r.next.Name() }

func (r *RateLimitedGenerator) Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error) {
	select {
	case <-r.rateChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.wait):
		return nil, fmt.Errorf("%w: timeout waiting for %s rate slot", ErrRateLimited, r.next.Name())
	}
	defer func() { r.rateChan <- struct{}{} }()

	return r.next.Generate(ctx, src, settings)
}

func (r *RateLimitedGenerator) Close() error { return r.next.Close() }

// ──── Prompt ────

func buildQuizPrompt(settings models.QuizSettings) string {
	var b strings.Builder

	b.WriteString("You are LalaQuiz, an expert educational AI.\n\n")
	b.WriteString("Task: Create a study set (Quiz + Summary + Keywords + Study Plan) from the source material.\n\n")

	types := make([]string, len(settings.QuestionTypes))
	for i, t := range settings.QuestionTypes {
		types[i] = string(t)
	}

	b.WriteString("Settings:\n")
	fmt.Fprintf(&b, "- Questions: %d\n", settings.NumberOfQuestions)
	fmt.Fprintf(&b, "- Difficulty: %s\n", settings.Difficulty)
	fmt.Fprintf(&b, "- Types: %s\n", strings.Join(types, ", "))
	if settings.MaxCharsPerQuestion > 0 {
		fmt.Fprintf(&b, "- Keep each question under %d characters.\n", settings.MaxCharsPerQuestion)
	}
	if settings.MaxCharsPerAnswer > 0 {
		fmt.Fprintf(&b, "- Keep each answer and option under %d characters.\n", settings.MaxCharsPerAnswer)
	}

	b.WriteString("\nImportant Rules:\n")
	b.WriteString("1. True/False: if a question is 'true_false', the 'options' array MUST be [\"True\", \"False\"].\n")
	b.WriteString("2. Accuracy: the 'correct_answer' must exactly match one of the 'options' for multiple_choice and true_false.\n")
	b.WriteString("3. identification and fill_in_blank questions have no options; their answer is a short term.\n")
	if settings.ExplanationsEnabled {
		b.WriteString("4. Explanations: provide a clear, helpful explanation for every question.\n")
	} else {
		b.WriteString("4. Explanations: leave 'explanation' empty.\n")
	}
	b.WriteString("5. Output: STRICT JSON only. No preamble, no markdown, no backticks.\n")

	b.WriteString(`
Schema:
{"metadata": {"source": "short title of the material", "number_of_questions": int, "difficulty": "string", "types": ["string"]},
 "questions": [{"id": int, "type": "multiple_choice"|"true_false"|"identification"|"fill_in_blank", "question": "string", "options": ["string"], "correct_answer": "string", "explanation": "string"}],
 "summary": "concise summary",
 "keywords": ["key term"],
 "study_plan": [{"day": "Day 1", "topic": "string", "activity": "string"}]}
`)

	return b.String()
}

func sourceTextBlock(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return "\n---SOURCE TEXT---\n" + text + "\n---END---\n"
}

// ──── Response parsing ────

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

// parseQuizResponse decodes a provider's JSON answer, tolerating code fences
// and text around the outermost object.
func parseQuizResponse(raw string) (*models.Quiz, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var quiz models.Quiz
	if err := json.Unmarshal([]byte(text), &quiz); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		quiz = models.Quiz{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &quiz); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	return &quiz, nil
}

// NormalizeGenerated repairs a provider quiz in place so it satisfies the quiz
// model: unusable questions are dropped, true/false options are fixed,
// choice answers are mapped onto the exact option text, ids are renumbered
// when missing or duplicated and the metadata counts are recomputed. It fails
// when no usable question remains.
func NormalizeGenerated(quiz *models.Quiz, settings models.QuizSettings, fallbackSource string) error {
	if quiz == nil {
		return fmt.Errorf("%w: no quiz in response", ErrMalformedResponse)
	}

	kept := make([]models.Question, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		if !q.Type.Valid() {
			if len(q.Options) > 0 {
				q.Type = models.MultipleChoice
			} else {
				q.Type = models.Identification
			}
		}
		if !repairAnswer(&q) {
			log.Printf("Dropping generated question with unmatched answer: %q", q.Question)
			continue
		}
		if !settings.ExplanationsEnabled {
			q.Explanation = ""
		}
		kept = append(kept, q)
	}
	if len(kept) == 0 {
		return fmt.Errorf("%w: no usable questions", ErrMalformedResponse)
	}

	seen := make(map[int]bool, len(kept))
	renumber := false
	for _, q := range kept {
		if q.ID <= 0 || seen[q.ID] {
			renumber = true
			break
		}
		seen[q.ID] = true
	}
	if renumber {
		for i := range kept {
			kept[i].ID = i + 1
		}
	}
	quiz.Questions = kept

	if strings.TrimSpace(quiz.Metadata.Source) == "" {
		quiz.Metadata.Source = fallbackSource
	}
	if quiz.Metadata.Difficulty == "" {
		quiz.Metadata.Difficulty = string(settings.Difficulty)
	}
	quiz.Metadata.NumberOfQuestions = len(kept)

	var types []string
	present := map[models.QuestionType]bool{}
	for _, q := range kept {
		if !present[q.Type] {
			present[q.Type] = true
			types = append(types, string(q.Type))
		}
	}
	quiz.Metadata.Types = types

	return nil
}

// repairAnswer makes a choice question's answer equal one of its options. It
// reports false when no option matches.
func repairAnswer(q *models.Question) bool {
	switch q.Type {
	case models.TrueFalse:
		q.Options = models.TrueFalseOptions()
	case models.MultipleChoice:
		if len(q.Options) < 2 {
			return false
		}
	default:
		q.Options = nil
		return strings.TrimSpace(q.CorrectAnswer) != ""
	}

	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return true
		}
	}
	for _, opt := range q.Options {
		if answer.Equal(opt, q.CorrectAnswer) {
			q.CorrectAnswer = opt
			return true
		}
	}

	// "B" or "b)" style answers point at an option by letter.
	letter := strings.TrimRight(strings.TrimSpace(q.CorrectAnswer), ").:")
	if len(letter) == 1 {
		idx := int(strings.ToUpper(letter)[0] - 'A')
		if idx >= 0 && idx < len(q.Options) {
			q.CorrectAnswer = q.Options[idx]
			return true
		}
	}
	return false
}

// ──── Session titles ────

// DeriveTitle names a freshly generated session: the first file name, else
// the video title, else the first 30 characters of the text.
func DeriveTitle(req models.GenerateQuizRequest, videoTitle string) string {
	if len(req.Files) > 0 && req.Files[0].Name != "" {
		return req.Files[0].Name
	}
	if videoTitle != "" {
		return videoTitle
	}
	text := strings.TrimSpace(req.Text)
	if text != "" {
		runes := []rune(text)
		if len(runes) > 30 {
			return string(runes[:30]) + "..."
		}
		return text
	}
	return "Untitled Quiz"
}
