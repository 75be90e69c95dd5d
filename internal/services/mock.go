package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"lalaquiz-backend/internal/models"
)

// MockGenerator builds a deterministic quiz from the words of the source text.
// It never calls out and is meant for local development and tests.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Close() error { return nil }

func (m *MockGenerator) Generate(ctx context.Context, src Source, settings models.QuizSettings) (*models.Quiz, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := keyTerms(src)
	if len(terms) == 0 {
		terms = []string{"study"}
	}
	types := settings.QuestionTypes
	if len(types) == 0 {
		types = []models.QuestionType{models.MultipleChoice}
	}

	n := settings.NumberOfQuestions
	if n < 1 {
		n = 1
	}

	quiz := &models.Quiz{
		Metadata: models.QuizMetadata{
			Source:     mockSourceTitle(src),
			Difficulty: string(settings.Difficulty),
		},
		Summary:  fmt.Sprintf("The material covers %s.", strings.Join(terms[:min(len(terms), 3)], ", ")),
		Keywords: terms[:min(len(terms), 5)],
		StudyPlan: []models.StudyPlanItem{
			{Day: "Day 1", Topic: terms[0], Activity: "Review the summary and keywords"},
			{Day: "Day 2", Topic: "Practice", Activity: "Retake missed questions"},
		},
	}

	for i := 0; i < n; i++ {
		term := terms[i%len(terms)]
		q := models.Question{ID: i + 1, Type: types[i%len(types)], CorrectAnswer: term}

		switch q.Type {
		case models.TrueFalse:
			q.Question = fmt.Sprintf("The material mentions %q.", term)
			q.Options = models.TrueFalseOptions()
			q.CorrectAnswer = "True"
		case models.Identification:
			q.Question = fmt.Sprintf("Identify the term that starts with %q.", string([]rune(term)[0]))
		case models.FillInBlank:
			q.Question = fmt.Sprintf("____ is key term number %d of the material.", i%len(terms)+1)
		default:
			q.Question = fmt.Sprintf("Which term appears in the material? (%d)", i+1)
			q.Options = []string{term, "None of these", "All of these", "Not covered"}
		}
		if settings.ExplanationsEnabled {
			q.Explanation = fmt.Sprintf("%q is taken directly from the material.", term)
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	return quiz, nil
}

// keyTerms returns the distinct words of at least five letters, in order of
// first appearance.
func keyTerms(src Source) []string {
	words := strings.FieldsFunc(src.Text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range src.Files {
		words = append(words, strings.FieldsFunc(f.Name, func(r rune) bool { return !unicode.IsLetter(r) })...)
	}

	seen := map[string]bool{}
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 5 {
			continue
		}
		lw := strings.ToLower(w)
		if seen[lw] {
			continue
		}
		seen[lw] = true
		terms = append(terms, w)
	}
	return terms
}

func mockSourceTitle(src Source) string {
	if len(src.Files) > 0 {
		return src.Files[0].Name
	}
	fields := strings.Fields(src.Text)
	if len(fields) > 6 {
		fields = fields[:6]
	}
	if len(fields) == 0 {
		return "Mock Quiz"
	}
	return strings.Join(fields, " ")
}
