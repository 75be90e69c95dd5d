package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"lalaquiz-backend/internal/config"
	"lalaquiz-backend/internal/models"
)

func TestParseQuizResponse(t *testing.T) {
	body := `{"metadata":{"source":"Bio","number_of_questions":1,"difficulty":"Easy","types":["multiple_choice"]},
"questions":[{"id":1,"type":"multiple_choice","question":"Q?","options":["A","B"],"correct_answer":"A"}],
"summary":"S","keywords":["k"]}`

	tests := []struct {
		name string
		raw  string
	}{
		{"plain", body},
		{"fenced", "```json\n" + body + "\n```"},
		{"bare fence", "```\n" + body + "\n```"},
		{"surrounding prose", "Here is your quiz:\n" + body + "\nGood luck!"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quiz, err := parseQuizResponse(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quiz.Metadata.Source != "Bio" || len(quiz.Questions) != 1 || quiz.Summary != "S" {
				t.Errorf("unexpected quiz %+v", quiz)
			}
		})
	}
}

func TestParseQuizResponse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json here", "{broken", "```json\n```"} {
		if _, err := parseQuizResponse(raw); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("parseQuizResponse(%q): expected ErrMalformedResponse, got %v", raw, err)
		}
	}
}

func TestNormalizeGenerated(t *testing.T) {
	settings := models.DefaultSettings()
	quiz := &models.Quiz{
		Metadata: models.QuizMetadata{NumberOfQuestions: 99, Types: []string{"bogus"}},
		Questions: []models.Question{
			{ID: 1, Type: models.MultipleChoice, Question: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "paris"},
			{ID: 1, Type: models.TrueFalse, Question: "Sky is blue.", Options: []string{"Yes", "No"}, CorrectAnswer: "true"},
			{ID: 3, Type: models.MultipleChoice, Question: "Pick B", Options: []string{"x", "y"}, CorrectAnswer: "B"},
			{ID: 4, Type: models.MultipleChoice, Question: "Unanswerable", Options: []string{"x", "y"}, CorrectAnswer: "z"},
			{ID: 5, Type: models.Identification, Question: "  ", CorrectAnswer: "nothing"},
			{ID: 6, Type: "essay", Question: "Name the river.", CorrectAnswer: "Nile", Options: nil},
			{ID: 7, Type: models.FillInBlank, Question: "___ is red.", Options: []string{"stray"}, CorrectAnswer: "Mars"},
		},
	}

	if err := NormalizeGenerated(quiz, settings, "Fallback"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(quiz.Questions) != 5 {
		t.Fatalf("expected 5 usable questions, got %d: %+v", len(quiz.Questions), quiz.Questions)
	}
	q := quiz.Questions
	if q[0].CorrectAnswer != "Paris" {
		t.Errorf("expected answer repaired to option text, got %q", q[0].CorrectAnswer)
	}
	if !reflect.DeepEqual(q[1].Options, []string{"True", "False"}) || q[1].CorrectAnswer != "True" {
		t.Errorf("expected fixed true/false question, got %+v", q[1])
	}
	if q[2].CorrectAnswer != "y" {
		t.Errorf("expected letter answer mapped to option, got %q", q[2].CorrectAnswer)
	}
	if q[3].Type != models.Identification {
		t.Errorf("expected unknown type without options to become identification, got %q", q[3].Type)
	}
	if q[4].Options != nil {
		t.Errorf("expected typed-answer question options cleared, got %v", q[4].Options)
	}
	for i, question := range q {
		if question.ID != i+1 {
			t.Errorf("expected duplicate ids renumbered, question %d has id %d", i, question.ID)
		}
	}

	if quiz.Metadata.Source != "Fallback" {
		t.Errorf("expected fallback source, got %q", quiz.Metadata.Source)
	}
	if quiz.Metadata.Difficulty != string(settings.Difficulty) {
		t.Errorf("expected default difficulty, got %q", quiz.Metadata.Difficulty)
	}
	if quiz.Metadata.NumberOfQuestions != 5 {
		t.Errorf("expected count 5, got %d", quiz.Metadata.NumberOfQuestions)
	}
	want := []string{"multiple_choice", "true_false", "identification", "fill_in_blank"}
	if !reflect.DeepEqual(quiz.Metadata.Types, want) {
		t.Errorf("expected types %v, got %v", want, quiz.Metadata.Types)
	}
}

func TestNormalizeGenerated_KeepsUniqueIDs(t *testing.T) {
	quiz := &models.Quiz{Questions: []models.Question{
		{ID: 10, Type: models.Identification, Question: "a", CorrectAnswer: "a"},
		{ID: 20, Type: models.Identification, Question: "b", CorrectAnswer: "b"},
	}}
	if err := NormalizeGenerated(quiz, models.DefaultSettings(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quiz.Questions[0].ID != 10 || quiz.Questions[1].ID != 20 {
		t.Errorf("expected ids kept, got %d and %d", quiz.Questions[0].ID, quiz.Questions[1].ID)
	}
}

func TestNormalizeGenerated_ExplanationsDisabled(t *testing.T) {
	settings := models.DefaultSettings()
	settings.ExplanationsEnabled = false
	quiz := &models.Quiz{Questions: []models.Question{
		{ID: 1, Type: models.Identification, Question: "a", CorrectAnswer: "a", Explanation: "because"},
	}}
	NormalizeGenerated(quiz, settings, "x")
	if quiz.Questions[0].Explanation != "" {
		t.Errorf("expected explanation removed, got %q", quiz.Questions[0].Explanation)
	}
}

func TestNormalizeGenerated_NothingUsable(t *testing.T) {
	quiz := &models.Quiz{Questions: []models.Question{
		{ID: 1, Type: models.MultipleChoice, Question: "Q", Options: []string{"only"}, CorrectAnswer: "only"},
	}}
	if err := NormalizeGenerated(quiz, models.DefaultSettings(), "x"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
	if err := NormalizeGenerated(nil, models.DefaultSettings(), "x"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse for nil quiz, got %v", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name       string
		req        models.GenerateQuizRequest
		videoTitle string
		expected   string
	}{
		{"file name wins", models.GenerateQuizRequest{Text: "some text", Files: []models.FileData{{Name: "notes.pdf"}}}, "Video", "notes.pdf"},
		{"video title", models.GenerateQuizRequest{Text: "some text"}, "Video", "Video"},
		{"short text", models.GenerateQuizRequest{Text: "Photosynthesis"}, "", "Photosynthesis"},
		{"long text", models.GenerateQuizRequest{Text: strings.Repeat("a", 40)}, "", strings.Repeat("a", 30) + "..."},
		{"nothing", models.GenerateQuizRequest{}, "", "Untitled Quiz"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.req, tc.videoTitle); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestBuildQuizPrompt(t *testing.T) {
	settings := models.QuizSettings{
		NumberOfQuestions:   7,
		Difficulty:          models.DifficultyHard,
		QuestionTypes:       []models.QuestionType{models.TrueFalse, models.FillInBlank},
		MaxCharsPerQuestion: 120,
		ExplanationsEnabled: false,
	}
	prompt := buildQuizPrompt(settings)

	for _, want := range []string{
		"Questions: 7",
		"Difficulty: Hard",
		"Types: true_false, fill_in_blank",
		"under 120 characters",
		`["True", "False"]`,
		"leave 'explanation' empty",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Name() string { return "blocking" }
func (b *blockingGenerator) Close() error { return nil }
func (b *blockingGenerator) Generate(ctx context.Context, _ Source, _ models.QuizSettings) (*models.Quiz, error) {
	b.started <- struct{}{}
	<-b.release
	return &models.Quiz{}, nil
}

func TestRateLimitedGenerator(t *testing.T) {
	inner := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	limited := NewRateLimitedGenerator(inner, 1)

	done := make(chan error, 1)
	go func() {
		_, err := limited.Generate(context.Background(), Source{Text: "x"}, models.DefaultSettings())
		done <- err
	}()
	<-inner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Generate(ctx, Source{Text: "y"}, models.DefaultSettings()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected second call to wait for a slot, got %v", err)
	}

	close(inner.release)
	if err := <-done; err != nil {
		t.Errorf("first call failed: %v", err)
	}
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	g, err := NewGenerator(ctx, &config.Config{AIProvider: "gemini", AIConcurrentRequests: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.Generate(ctx, Source{Text: "x"}, models.DefaultSettings()); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential without a key, got %v", err)
	}

	g, err = NewGenerator(ctx, &config.Config{AIProvider: "mock", AIConcurrentRequests: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name() != "mock" {
		t.Errorf("expected mock generator, got %s", g.Name())
	}
}

func TestMockGenerator(t *testing.T) {
	settings := models.DefaultSettings()
	settings.NumberOfQuestions = 6
	settings.QuestionTypes = []models.QuestionType{models.MultipleChoice, models.TrueFalse, models.Identification}

	quiz, err := NewMockGenerator().Generate(context.Background(),
		Source{Text: "Mitochondria produce energy while ribosomes assemble proteins."}, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quiz.Questions) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(quiz.Questions))
	}
	if err := NormalizeGenerated(quiz, settings, "fallback"); err != nil {
		t.Fatalf("mock quiz did not survive normalization: %v", err)
	}
	if len(quiz.Questions) != 6 {
		t.Errorf("expected every mock question to be usable, got %d", len(quiz.Questions))
	}
	if quiz.Keywords[0] != "Mitochondria" {
		t.Errorf("expected first keyword Mitochondria, got %v", quiz.Keywords)
	}
}
