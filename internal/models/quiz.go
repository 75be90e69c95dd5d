package models

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Identification QuestionType = "identification"
	FillInBlank    QuestionType = "fill_in_blank"
)

// Valid reports whether t is one of the four supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, Identification, FillInBlank:
		return true
	}
	return false
}

// TrueFalseOptions is the fixed option pair every true/false question carries.
func TrueFalseOptions() []string {
	return []string{"True", "False"}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
	DifficultyMixed  Difficulty = "Mixed"
)

type ScoringType string

const (
	ScoringStandard   ScoringType = "Standard"   // 1 point per question
	ScoringWeighted   ScoringType = "Weighted"   // typed answers count double
	ScoringPercentage ScoringType = "Percentage" // 1 point per question, reported as 0-100
)

type Question struct {
	ID            int          `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
}

type QuizMetadata struct {
	Source            string   `json:"source"`
	NumberOfQuestions int      `json:"number_of_questions"`
	Difficulty        string   `json:"difficulty"`
	Types             []string `json:"types"`
}

type StudyPlanItem struct {
	Day      string `json:"day"`
	Topic    string `json:"topic"`
	Activity string `json:"activity"`
}

type Quiz struct {
	Metadata  QuizMetadata    `json:"metadata"`
	Questions []Question      `json:"questions"`
	Summary   string          `json:"summary,omitempty"`
	Keywords  []string        `json:"keywords,omitempty"`
	StudyPlan []StudyPlanItem `json:"study_plan,omitempty"`
}

// WithQuestions returns a copy of q that carries only the given questions.
// Question ids are kept as they are; the derived quiz is never re-encoded.
func (q Quiz) WithQuestions(questions []Question) Quiz {
	out := q
	out.Questions = append([]Question(nil), questions...)
	return out
}

type QuizSettings struct {
	NumberOfQuestions   int            `json:"number_of_questions" validate:"min=1,max=200"`
	Difficulty          Difficulty     `json:"difficulty" validate:"oneof=Easy Medium Hard Mixed"`
	QuestionTypes       []QuestionType `json:"question_types" validate:"min=1,dive,oneof=multiple_choice true_false identification fill_in_blank"`
	MaxCharsPerQuestion int            `json:"max_chars_per_question" validate:"min=0"`
	MaxCharsPerAnswer   int            `json:"max_chars_per_answer" validate:"min=0"`
	ScoringType         ScoringType    `json:"scoring_type" validate:"oneof=Standard Weighted Percentage"`
	ExplanationsEnabled bool           `json:"explanations_enabled"`
}

const (
	MaxQuestionsLimit = 200
	MinQuestionsLimit = 1
)

func DefaultSettings() QuizSettings {
	return QuizSettings{
		NumberOfQuestions:   10,
		Difficulty:          DifficultyMixed,
		QuestionTypes:       []QuestionType{MultipleChoice, TrueFalse},
		MaxCharsPerQuestion: 150,
		MaxCharsPerAnswer:   50,
		ScoringType:         ScoringStandard,
		ExplanationsEnabled: true,
	}
}

// FileData is one uploaded source file with its content base64 encoded.
type FileData struct {
	Name     string `json:"name" validate:"required"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data" validate:"required"`
}

type GenerateQuizRequest struct {
	Text       string        `json:"text"`
	Files      []FileData    `json:"files" validate:"dive"`
	YouTubeURL string        `json:"youtube_url,omitempty" validate:"omitempty,url"`
	Settings   *QuizSettings `json:"settings"`
}
