package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
	QuestionTypeFreeCode     QuestionType = "FREE_CODE"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeFreeText, QuestionTypeFreeCode:
		return true
	}
	return false
}

// IsChoice reports whether questions of this type carry options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question is a catalog entry. The engine only reads questions.
type Question struct {
	ID             uuid.UUID    `json:"id"`
	TeacherID      int          `json:"teacher_id"`
	Text           string       `json:"question_text"`
	Type           QuestionType `json:"question_type"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correct_answers"`
	Points         int          `json:"points"`
}

// Weight returns the question's point value, defaulting to 1.
func (q *Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// ForStudent strips the answer-bearing fields.
func (q *Question) ForStudent() QuestionForStudent {
	qs := QuestionForStudent{
		ID:     q.ID,
		Text:   q.Text,
		Type:   q.Type,
		Points: q.Weight(),
	}
	if q.Type.IsChoice() {
		qs.Options = append([]string(nil), q.Options...)
	}
	return qs
}

// QuestionForStudent is a question without the correct answers.
type QuestionForStudent struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"question_text"`
	Type    QuestionType `json:"question_type"`
	Options []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
}
