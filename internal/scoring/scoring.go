// Package scoring grades a set of answers against a quiz and derives the
// review artifacts built from that grade: missed questions, a retake quiz and
// result exports.
package scoring

import (
	"math"

	"lalaquiz-backend/internal/answer"
	"lalaquiz-backend/internal/models"
)

// Answers maps a question id to the answer the user gave.
type Answers map[int]string

// QuestionResult is the grade of a single question.
type QuestionResult struct {
	QuestionID    int                 `json:"question_id"`
	Type          models.QuestionType `json:"type"`
	UserAnswer    string              `json:"user_answer"`
	CorrectAnswer string              `json:"correct_answer"`
	Correct       bool                `json:"correct"`
	Points        int                 `json:"points"`
}

// Result is the outcome of scoring one attempt.
type Result struct {
	ScoringType models.ScoringType `json:"scoring_type"`
	Score       int                `json:"score"`
	MaxScore    int                `json:"max_score"`
	Percentage  int                `json:"percentage"`
	Answered    int                `json:"answered"`
	Questions   []QuestionResult   `json:"questions"`
	Missed      []models.Question  `json:"missed"`
}

// Points returns what a question of type t is worth under st.
func Points(t models.QuestionType, st models.ScoringType) int {
	if st == models.ScoringWeighted && (t == models.FillInBlank || t == models.Identification) {
		return 2
	}
	return 1
}

// IsCorrect compares a user answer with the question's correct answer after
// normalization. An unanswered question is compared as the empty string.
func IsCorrect(q models.Question, userAnswer string) bool {
	return answer.Equal(userAnswer, q.CorrectAnswer)
}

// Score grades answers against quiz. Unknown scoring types grade as
// ScoringStandard.
func Score(quiz *models.Quiz, answers Answers, st models.ScoringType) Result {
	if st != models.ScoringWeighted && st != models.ScoringPercentage {
		st = models.ScoringStandard
	}

	res := Result{
		ScoringType: st,
		Questions:   []QuestionResult{},
		Missed:      []models.Question{},
	}
	if quiz == nil {
		return res
	}

	for _, q := range quiz.Questions {
		given, ok := answers[q.ID]
		if ok && given != "" {
			res.Answered++
		}

		pts := Points(q.Type, st)
		correct := IsCorrect(q, given)

		res.MaxScore += pts
		qr := QuestionResult{
			QuestionID:    q.ID,
			Type:          q.Type,
			UserAnswer:    given,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       correct,
		}
		if correct {
			res.Score += pts
			qr.Points = pts
		} else {
			res.Missed = append(res.Missed, q)
		}
		res.Questions = append(res.Questions, qr)
	}

	res.Percentage = Percentage(res.Score, res.MaxScore)
	return res
}

// Percentage rounds score/max to a whole percent, half away from zero. A zero
// max yields 0.
func Percentage(score, max int) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(max) * 100))
}

// RetakeMissed derives a quiz holding only the questions in missed, in the
// order they appear in quiz. Question ids are kept so answers recorded against
// the derived quiz still line up. It returns nil when nothing was missed.
func RetakeMissed(quiz *models.Quiz, missed []models.Question) *models.Quiz {
	if quiz == nil || len(missed) == 0 {
		return nil
	}

	want := make(map[int]bool, len(missed))
	for _, q := range missed {
		want[q.ID] = true
	}

	var questions []models.Question
	for _, q := range quiz.Questions {
		if want[q.ID] {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil
	}

	derived := quiz.WithQuestions(questions)
	return &derived
}
