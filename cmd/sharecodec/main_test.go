package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/sharing"
)

const quizJSON = `{
  "metadata": {"source": "Planets", "number_of_questions": 1, "difficulty": "Easy", "types": ["true_false"]},
  "questions": [{"id": 1, "type": "true_false", "question": "Mars is red.", "correct_answer": "True"}]
}`

func TestEncodeDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.json")
	if err := os.WriteFile(path, []byte(quizJSON), 0644); err != nil {
		t.Fatal(err)
	}

	var encoded bytes.Buffer
	if err := run([]string{"encode", "-in", path, "-base", "http://localhost:5173/"}, nil, &encoded); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	shareURL := strings.TrimSpace(encoded.String())
	if !strings.HasPrefix(shareURL, "http://localhost:5173/?share=") {
		t.Fatalf("unexpected url %q", shareURL)
	}

	var decoded bytes.Buffer
	if err := run([]string{"decode", "-url", shareURL}, nil, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var quiz models.Quiz
	if err := json.Unmarshal(decoded.Bytes(), &quiz); err != nil {
		t.Fatalf("decode output is not quiz JSON: %v", err)
	}
	if quiz.Metadata.Source != "Planets" || len(quiz.Questions) != 1 || len(quiz.Questions[0].Options) != 2 {
		t.Errorf("unexpected decoded quiz %+v", quiz)
	}
}

func TestEncodeStdinToToken(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"encode"}, strings.NewReader(quizJSON), &out); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded bytes.Buffer
	if err := run([]string{"decode"}, strings.NewReader(out.String()), &decoded); err != nil {
		t.Fatalf("decode from stdin failed: %v", err)
	}
}

func TestErrors(t *testing.T) {
	if err := run(nil, nil, &bytes.Buffer{}); err == nil {
		t.Error("expected usage error")
	}
	if err := run([]string{"compress"}, nil, &bytes.Buffer{}); err == nil {
		t.Error("expected unknown command error")
	}
	if err := run([]string{"decode", "-token", "garbage$$"}, nil, &bytes.Buffer{}); !errors.Is(err, sharing.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	err := run([]string{"encode", "-base", "http://localhost:5173/", "-max-length", "30"}, strings.NewReader(quizJSON), &bytes.Buffer{})
	if !errors.Is(err, sharing.ErrSizeLimitExceeded) {
		t.Errorf("expected ErrSizeLimitExceeded, got %v", err)
	}
}
