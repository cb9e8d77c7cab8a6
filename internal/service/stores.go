package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// The interfaces below are the slices of the repositories each service
// needs. The concrete pgx/Redis repositories satisfy them.

// ExamStore reads and updates exam definitions.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	ListPublishedForClasses(ctx context.Context, classIDs []int) ([]model.Exam, error)
	ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	SetSchedule(ctx context.Context, id uuid.UUID, at *time.Time) error
	ReplaceSections(ctx context.Context, id uuid.UUID, sections []model.Section) (bool, error)
}

// ExamCache caches published exam definitions. Get returns nil on a miss.
type ExamCache interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Set(ctx context.Context, e *model.Exam) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionCatalog resolves question references.
type QuestionCatalog interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// ClassStore resolves the class an exam is assigned to.
type ClassStore interface {
	GetByID(ctx context.Context, id int) (*model.Class, error)
}

// EnrollmentChecker answers class membership questions for a student.
type EnrollmentChecker interface {
	IsApproved(ctx context.Context, classID, studentID int) (bool, error)
	ApprovedClassIDs(ctx context.Context, studentID int) ([]int, error)
}

// SubmissionStore persists submission records.
type SubmissionStore interface {
	Insert(ctx context.Context, s *model.Submission) error
	Exists(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListByStudent(ctx context.Context, studentID int) ([]repository.StudentSubmission, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SubmissionSummary, int64, error)
	Analytics(ctx context.Context, examID uuid.UUID) (*model.ExamAnalytics, error)
	UpdateOverride(ctx context.Context, s *model.Submission) error
}

// AttemptTracker keeps per-attempt state outside the session.
type AttemptTracker interface {
	MarkStart(ctx context.Context, examID uuid.UUID, studentID int, at time.Time) (time.Time, bool, error)
	StartedAt(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error)
	ClearDraft(ctx context.Context, examID uuid.UUID, studentID int) error
}

// MonitorPublisher broadcasts live monitor events.
type MonitorPublisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent) error
}

// loadCatalog fetches ids and indexes the result by id.
func loadCatalog(ctx context.Context, catalog QuestionCatalog, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	questions, err := catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}
