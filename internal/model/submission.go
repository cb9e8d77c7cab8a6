package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Submission is the single accepted record for an (exam, student) pair.
// Answers and AutoScore never change after insert; an override only touches
// Score, Percentage, IsPassed, Feedback and the grading audit fields.
type Submission struct {
	ID            uuid.UUID        `json:"id"`
	AttemptID     uuid.UUID        `json:"attempt_id"`
	ExamID        uuid.UUID        `json:"exam_id"`
	StudentID     int              `json:"student_id"`
	Answers       AnswerSet        `json:"answers"`
	AutoScore     float64          `json:"auto_score"`
	Score         float64          `json:"score"`
	MaxScore      float64          `json:"max_score"`
	Percentage    float64          `json:"percentage"`
	IsPassed      bool             `json:"is_passed"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	Integrity     IntegritySummary `json:"integrity"`
	Feedback      *string          `json:"feedback,omitempty"`
	OverrideScore *float64         `json:"override_score,omitempty"`
	GradedBy      *int             `json:"graded_by,omitempty"`
	GradedAt      *time.Time       `json:"graded_at,omitempty"`
}

// SubmitRequest is what an attempt sends exactly once.
type SubmitRequest struct {
	AttemptID uuid.UUID        `json:"attempt_id" binding:"required"`
	ExamID    uuid.UUID        `json:"-"`
	StudentID int              `json:"-"`
	Answers   AnswerSet        `json:"answers"`
	Integrity IntegritySummary `json:"integrity"`
	// Malformed holds answers that could not be decoded. They are reported
	// back with the result and never graded.
	Malformed []AnswerRejection `json:"-"`
}

// UnmarshalJSON decodes answers one by one so that a single malformed answer
// does not discard the rest of the attempt.
func (r *SubmitRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		AttemptID uuid.UUID                  `json:"attempt_id"`
		Answers   map[string]json.RawMessage `json:"answers"`
		Integrity IntegritySummary           `json:"integrity"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.AttemptID = w.AttemptID
	r.Integrity = w.Integrity
	r.Answers, r.Malformed = DecodeAnswerSet(w.Answers)
	return nil
}

// AnswerRejection names an answer dropped before grading.
type AnswerRejection struct {
	QuestionID uuid.UUID `json:"question_id"`
	Reason     string    `json:"reason"`
}

// SubmitResult is returned when a submission is accepted.
type SubmitResult struct {
	Submission *Submission       `json:"submission"`
	Rejected   []AnswerRejection `json:"rejected_answers,omitempty"`
}

// SectionScore is a per-section rollup computed on read.
type SectionScore struct {
	SectionName string  `json:"section_name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Percentage  float64 `json:"percentage"`
}

// StudentResult is one row of a student's results list.
type StudentResult struct {
	SubmissionID  uuid.UUID      `json:"submission_id"`
	ExamID        uuid.UUID      `json:"exam_id"`
	ExamTitle     string         `json:"exam_title"`
	TotalScore    float64        `json:"total_score"`
	MaxScore      float64        `json:"max_score"`
	Percentage    float64        `json:"percentage"`
	IsPassed      bool           `json:"is_passed"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	SectionScores []SectionScore `json:"section_scores"`
	Feedback      *string        `json:"feedback,omitempty"`
}

// SubmissionSummary is a row of the teacher's per-exam list.
type SubmissionSummary struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	StudentID    int       `json:"student_id"`
	StudentName  string    `json:"student_name"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"max_score"`
	Percentage   float64   `json:"percentage"`
	IsPassed     bool      `json:"is_passed"`
	IsSuspicious bool      `json:"is_suspicious"`
	TabSwitches  int       `json:"tab_switches"`
	Overridden   bool      `json:"overridden"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ExamAnalytics aggregates submissions of one exam.
type ExamAnalytics struct {
	ExamID            uuid.UUID `json:"exam_id"`
	TotalSubmissions  int       `json:"total_submissions"`
	AveragePercentage float64   `json:"average_percentage"`
	PassRate          float64   `json:"pass_rate"`
	SuspiciousCount   int       `json:"suspicious_count"`
}

// GradeOverrideRequest is the teacher's manual grade.
type GradeOverrideRequest struct {
	Score    *float64 `json:"score" binding:"required"`
	Feedback *string  `json:"feedback" binding:"omitempty,max=5000"`
}

// GradedAnswer is one question of a submission as the teacher reviews it.
// Answer is nil when the student left the question blank.
type GradedAnswer struct {
	QuestionID     uuid.UUID    `json:"question_id"`
	SectionName    string       `json:"section_name"`
	QuestionText   string       `json:"question_text"`
	QuestionType   QuestionType `json:"question_type"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correct_answers"`
	Points         int          `json:"points"`
	Answer         *Answer      `json:"answer"`
	IsCorrect      bool         `json:"is_correct"`
}

// SubmissionDetail is a stored submission with correctness recomputed per
// question. Questions missing from the catalog are listed in MissingQuestions.
type SubmissionDetail struct {
	Submission       *Submission    `json:"submission"`
	ExamTitle        string         `json:"exam_title"`
	Questions        []GradedAnswer `json:"questions"`
	SectionScores    []SectionScore `json:"section_scores"`
	MissingQuestions []uuid.UUID    `json:"missing_questions,omitempty"`
}
