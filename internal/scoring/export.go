package scoring

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"lalaquiz-backend/internal/models"
)

var csvHeader = []string{"Question", "Type", "Correct Answer", "Your Answer", "Is Correct"}

// ExportCSV renders one row per question with the user's answer and whether it
// was correct.
func ExportCSV(quiz *models.Quiz, answers Answers) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	if quiz != nil {
		for _, q := range quiz.Questions {
			given := answers[q.ID]
			correct := "FALSE"
			if IsCorrect(q, given) {
				correct = "TRUE"
			}
			row := []string{q.Question, string(q.Type), q.CorrectAnswer, given, correct}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write csv row for question %d: %w", q.ID, err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportJSON renders the full quiz as indented JSON. Unlike a share token it
// keeps every field.
func ExportJSON(quiz *models.Quiz) ([]byte, error) {
	if quiz == nil {
		return nil, fmt.Errorf("no quiz data to export")
	}
	data, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quiz: %w", err)
	}
	return data, nil
}
