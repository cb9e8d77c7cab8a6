package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the static definition of an exam: ordered sections of question
// references plus scheduling, access gate, anti-cheat policy and pass mark.
type Exam struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Instructions    string          `json:"instructions,omitempty"`
	ClassID         int             `json:"class_id"`
	TeacherID       int             `json:"teacher_id"`
	DurationMinutes int             `json:"duration_minutes"`
	PassPercentage  float64         `json:"pass_percentage"`
	Sections        []Section       `json:"sections"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	AccessCode      *string         `json:"access_code,omitempty"`
	AntiCheat       AntiCheatPolicy `json:"anti_cheat"`
	IsPublished     bool            `json:"is_published"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Section is a named, ordered group of question references.
type Section struct {
	Name               string      `json:"name" binding:"required,min=1,max=255"`
	Instructions       string      `json:"instructions,omitempty" binding:"max=2000"`
	QuestionIDs        []uuid.UUID `json:"question_ids" binding:"required,min=1,dive,required"`
	RandomizeQuestions bool        `json:"randomize_questions"`
}

// AntiCheatPolicy selects which integrity signals an attempt captures and
// the thresholds above which a submission is flagged.
type AntiCheatPolicy struct {
	RequireFullscreen  bool `json:"require_fullscreen"`
	MonitorTabs        bool `json:"monitor_tabs"`
	PreventCopyPaste   bool `json:"prevent_copy_paste"`
	PreventRightClick  bool `json:"prevent_right_click"`
	MaxTabSwitches     int  `json:"max_tab_switches"`
	MaxFullscreenExits int  `json:"max_fullscreen_exits"`
}

// DefaultAntiCheatPolicy is applied to exams created without an explicit policy.
func DefaultAntiCheatPolicy() AntiCheatPolicy {
	return AntiCheatPolicy{
		RequireFullscreen:  true,
		MonitorTabs:        true,
		PreventCopyPaste:   true,
		PreventRightClick:  true,
		MaxTabSwitches:     3,
		MaxFullscreenExits: 2,
	}
}

// QuestionIDs flattens all section question references in exam order.
func (e *Exam) QuestionIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, s := range e.Sections {
		ids = append(ids, s.QuestionIDs...)
	}
	return ids
}

// HasAccessCode reports whether the exam is gated by an access code.
func (e *Exam) HasAccessCode() bool {
	return e.AccessCode != nil && *e.AccessCode != ""
}

// ExamView is what an authorized student receives: the exam's sections with
// student-safe questions, possibly shuffled per section.
type ExamView struct {
	ExamID          uuid.UUID       `json:"exam_id"`
	Title           string          `json:"title"`
	Instructions    string          `json:"instructions,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	AntiCheat       AntiCheatPolicy `json:"anti_cheat"`
	Sections        []SectionView   `json:"sections"`
}

// SectionView is a section as rendered to the student.
type SectionView struct {
	Name         string               `json:"name"`
	Instructions string               `json:"instructions,omitempty"`
	Questions    []QuestionForStudent `json:"questions"`
}

// QuestionCount returns the number of questions across all sections.
func (v *ExamView) QuestionCount() int {
	n := 0
	for _, s := range v.Sections {
		n += len(s.Questions)
	}
	return n
}

// ScheduleExamRequest sets or clears the exam's availability instant.
type ScheduleExamRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// ReplaceSectionsRequest replaces the sections of a draft exam.
type ReplaceSectionsRequest struct {
	Sections []Section `json:"sections" binding:"required,min=1,dive"`
}

// CreateExamRequest creates a draft exam in one of the teacher's classes.
// Sections may be empty and filled in later with ReplaceSectionsRequest.
type CreateExamRequest struct {
	Title           string           `json:"title" binding:"required,min=1,max=255"`
	Instructions    string           `json:"instructions" binding:"max=5000"`
	ClassID         int              `json:"class_id" binding:"required,min=1"`
	DurationMinutes int              `json:"duration_minutes" binding:"required,min=1,max=1440"`
	PassPercentage  float64          `json:"pass_percentage" binding:"min=0,max=100"`
	Sections        []Section        `json:"sections" binding:"omitempty,dive"`
	ScheduledAt     *time.Time       `json:"scheduled_at"`
	AccessCode      *string          `json:"access_code" binding:"omitempty,max=64"`
	AntiCheat       *AntiCheatPolicy `json:"anti_cheat"`
}

// ExamStatus is the availability of an exam from one student's point of view.
type ExamStatus string

const (
	ExamStatusUpcoming  ExamStatus = "upcoming"
	ExamStatusOngoing   ExamStatus = "ongoing"
	ExamStatusCompleted ExamStatus = "completed"
)

// StudentExam is an entry of the student's exam list. It carries no
// questions; the exam content is only served by authorization.
type StudentExam struct {
	ExamID          uuid.UUID  `json:"exam_id"`
	Title           string     `json:"title"`
	ClassID         int        `json:"class_id"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	RequiresCode    bool       `json:"requires_access_code"`
	Status          ExamStatus `json:"status"`
}
