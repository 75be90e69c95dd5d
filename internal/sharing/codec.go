// Package sharing turns a quiz into a short URL-safe token and back.
//
// The token is a lossy projection of the quiz: question ids, the
// number_of_questions count and the types list are dropped and re-derived on
// decode, the source label is cut to 50 characters, and true/false options
// are omitted because they are always ["True","False"]. Question content,
// order, answers, explanations and the optional summary, keywords and study
// plan survive the round trip.
//
// Token layout: compact JSON of the minified shape, raw DEFLATE, then
// unpadded base64url. Every character is legal in a query parameter without
// percent-encoding.
package sharing

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"

	"lalaquiz-backend/internal/models"
)

const (
	maxSourceRunes = 50
	ellipsis       = "..."

	// Inflated payloads above this size are treated as corrupt.
	maxInflatedBytes = 16 << 20
)

var (
	ErrEncodeFailure      = errors.New("failed to create share link")
	ErrInvalidToken       = errors.New("invalid or expired shared link")
	ErrCorruptToken       = fmt.Errorf("%w: corrupt token", ErrInvalidToken)
	ErrMalformedStructure = fmt.Errorf("%w: malformed structure", ErrInvalidToken)
)

// typeTable fixes the wire index of each question type. Append only.
var typeTable = [...]models.QuestionType{
	models.MultipleChoice,
	models.TrueFalse,
	models.Identification,
	models.FillInBlank,
}

// typeIndex returns the wire index of t, or -1 when t is not in the table.
func typeIndex(t models.QuestionType) int {
	for i, tt := range typeTable {
		if tt == t {
			return i
		}
	}
	return -1
}

// typeAt resolves a wire index. Out of range indices fall back to
// MultipleChoice.
func typeAt(i int) models.QuestionType {
	if i < 0 || i >= len(typeTable) {
		return models.MultipleChoice
	}
	return typeTable[i]
}

type minifiedQuestion struct {
	T int      `json:"t"`
	Q string   `json:"q"`
	O []string `json:"o,omitempty"`
	A string   `json:"a"`
	E string   `json:"e,omitempty"`
}

type minifiedMeta struct {
	S string `json:"s"`
	D string `json:"d"`
}

type minifiedPlanItem struct {
	D string `json:"d"`
	T string `json:"t"`
	A string `json:"a"`
}

type minifiedQuiz struct {
	M *minifiedMeta       `json:"m"`
	Q []*minifiedQuestion `json:"q"`
	S string              `json:"s,omitempty"`
	K []string            `json:"k,omitempty"`
	P []minifiedPlanItem  `json:"p,omitempty"`
}

func truncateSource(s string) string {
	if utf8.RuneCountInString(s) <= maxSourceRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSourceRunes]) + ellipsis
}

func minify(q *models.Quiz) minifiedQuiz {
	m := minifiedQuiz{
		M: &minifiedMeta{
			S: truncateSource(q.Metadata.Source),
			D: q.Metadata.Difficulty,
		},
		Q: make([]*minifiedQuestion, len(q.Questions)),
		S: q.Summary,
	}

	for i, question := range q.Questions {
		mq := &minifiedQuestion{
			T: typeIndex(question.Type),
			Q: question.Question,
			A: question.CorrectAnswer,
			E: question.Explanation,
		}
		if question.Type != models.TrueFalse && len(question.Options) > 0 {
			mq.O = question.Options
		}
		m.Q[i] = mq
	}

	if len(q.Keywords) > 0 {
		m.K = q.Keywords
	}
	if len(q.StudyPlan) > 0 {
		m.P = make([]minifiedPlanItem, len(q.StudyPlan))
		for i, item := range q.StudyPlan {
			m.P[i] = minifiedPlanItem{D: item.Day, T: item.Topic, A: item.Activity}
		}
	}

	return m
}

// Encode minifies q and compresses it into a share token. It does not modify q.
func Encode(q *models.Quiz) (string, error) {
	if q == nil {
		return "", fmt.Errorf("%w: no quiz data", ErrEncodeFailure)
	}

	raw, err := json.Marshal(minify(q))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}

	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode rebuilds a quiz from a share token. Any failure yields a nil quiz and
// an error matching ErrInvalidToken; a partially decoded quiz is never
// returned. Decode does not panic on hostile input.
func Decode(token string) (quiz *models.Quiz, err error) {
	defer func() {
		if r := recover(); r != nil {
			quiz = nil
			err = fmt.Errorf("%w: %v", ErrCorruptToken, r)
		}
	}()

	text, err := inflate(token)
	if err != nil {
		return nil, err
	}

	var m minifiedQuiz
	if err := json.Unmarshal(text, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStructure, err)
	}

	return expand(&m)
}

func inflate(token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrCorruptToken)
	}

	compressed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}

	zr := flate.NewReader(bytes.NewReader(compressed))
	defer zr.Close()

	text, err := io.ReadAll(io.LimitReader(zr, maxInflatedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptToken)
	}
	if len(text) > maxInflatedBytes {
		return nil, fmt.Errorf("%w: payload too large", ErrCorruptToken)
	}

	return text, nil
}

func expand(m *minifiedQuiz) (*models.Quiz, error) {
	if m.M == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrMalformedStructure)
	}
	if m.Q == nil {
		return nil, fmt.Errorf("%w: missing questions", ErrMalformedStructure)
	}

	questions := make([]models.Question, len(m.Q))
	for i, mq := range m.Q {
		if mq == nil {
			return nil, fmt.Errorf("%w: question %d is null", ErrMalformedStructure, i+1)
		}

		qt := typeAt(mq.T)
		q := models.Question{
			ID:            i + 1,
			Type:          qt,
			Question:      mq.Q,
			CorrectAnswer: mq.A,
			Explanation:   mq.E,
		}
		switch {
		case len(mq.O) > 0:
			q.Options = append([]string(nil), mq.O...)
		case qt == models.TrueFalse:
			q.Options = models.TrueFalseOptions()
		}
		questions[i] = q
	}

	quiz := &models.Quiz{
		Metadata: models.QuizMetadata{
			Source:            m.M.S,
			NumberOfQuestions: len(questions),
			Difficulty:        m.M.D,
			Types:             []string{},
		},
		Questions: questions,
		Summary:   m.S,
	}
	if len(m.K) > 0 {
		quiz.Keywords = append([]string(nil), m.K...)
	}
	if len(m.P) > 0 {
		quiz.StudyPlan = make([]models.StudyPlanItem, len(m.P))
		for i, p := range m.P {
			quiz.StudyPlan[i] = models.StudyPlanItem{Day: p.D, Topic: p.T, Activity: p.A}
		}
	}

	return quiz, nil
}
