package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// SubmissionLookup is the duplicate fast path used by the authorizer.
type SubmissionLookup interface {
	Exists(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
}

// Authorizer decides whether a student may start an attempt and builds the
// student-safe view of the exam.
type Authorizer struct {
	exams       *ExamService
	catalog     QuestionCatalog
	enrollments EnrollmentChecker
	submissions SubmissionLookup
	attempts    AttemptTracker
	monitor     MonitorPublisher
	log         zerolog.Logger

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewAuthorizer creates a new Authorizer.
func NewAuthorizer(
	exams *ExamService,
	catalog QuestionCatalog,
	enrollments EnrollmentChecker,
	submissions SubmissionLookup,
	attempts AttemptTracker,
	monitor MonitorPublisher,
	log zerolog.Logger,
) *Authorizer {
	return &Authorizer{
		exams:       exams,
		catalog:     catalog,
		enrollments: enrollments,
		submissions: submissions,
		attempts:    attempts,
		monitor:     monitor,
		log:         log.With().Str("component", "authorizer").Logger(),
		now:         time.Now,
		shuffle:     rand.Shuffle,
	}
}

// Authorize runs the checks in order and stops at the first failure:
// published exam, access code, approved enrollment, schedule, no prior
// submission. On success it returns the exam view with randomized sections
// shuffled for this request only.
func (a *Authorizer) Authorize(ctx context.Context, examID uuid.UUID, studentID int, accessCode string) (*model.ExamView, error) {
	exam, err := a.exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return nil, model.ErrExamNotFound
	}

	if exam.HasAccessCode() &&
		subtle.ConstantTimeCompare([]byte(accessCode), []byte(*exam.AccessCode)) != 1 {
		return nil, model.ErrInvalidAccessCode
	}

	approved, err := a.enrollments.IsApproved(ctx, exam.ClassID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !approved {
		return nil, model.ErrNotEnrolled
	}

	now := a.now()
	if exam.ScheduledAt != nil && exam.ScheduledAt.After(now) {
		return nil, model.ErrNotYetAvailable
	}

	exists, err := a.submissions.Exists(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if exists {
		return nil, model.ErrAlreadySubmitted
	}

	view, err := a.buildView(ctx, exam)
	if err != nil {
		return nil, err
	}

	a.markStart(ctx, examID, studentID, now)
	return view, nil
}

// ListAvailable returns the published exams of the student's approved
// classes. Exams scheduled in the future are upcoming; the rest are ongoing
// until the student has a submission, then completed.
func (a *Authorizer) ListAvailable(ctx context.Context, studentID int) ([]model.StudentExam, error) {
	classIDs, err := a.enrollments.ApprovedClassIDs(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	exams, err := a.exams.ListPublishedForClasses(ctx, classIDs)
	if err != nil {
		return nil, err
	}

	now := a.now()
	out := make([]model.StudentExam, 0, len(exams))
	for _, exam := range exams {
		entry := model.StudentExam{
			ExamID:          exam.ID,
			Title:           exam.Title,
			ClassID:         exam.ClassID,
			DurationMinutes: exam.DurationMinutes,
			ScheduledAt:     exam.ScheduledAt,
			RequiresCode:    exam.HasAccessCode(),
			Status:          model.ExamStatusOngoing,
		}
		if exam.ScheduledAt != nil && exam.ScheduledAt.After(now) {
			entry.Status = model.ExamStatusUpcoming
		} else {
			done, err := a.submissions.Exists(ctx, exam.ID, studentID)
			if err != nil {
				return nil, fmt.Errorf("check submission: %w", err)
			}
			if done {
				entry.Status = model.ExamStatusCompleted
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *Authorizer) buildView(ctx context.Context, exam *model.Exam) (*model.ExamView, error) {
	catalog, err := loadCatalog(ctx, a.catalog, exam.QuestionIDs())
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	view := &model.ExamView{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Instructions:    exam.Instructions,
		DurationMinutes: exam.DurationMinutes,
		AntiCheat:       exam.AntiCheat,
		Sections:        make([]model.SectionView, 0, len(exam.Sections)),
	}
	for _, sec := range exam.Sections {
		sv := model.SectionView{
			Name:         sec.Name,
			Instructions: sec.Instructions,
			Questions:    make([]model.QuestionForStudent, 0, len(sec.QuestionIDs)),
		}
		for _, qid := range sec.QuestionIDs {
			q, ok := catalog[qid]
			if !ok {
				a.log.Warn().
					Str("exam_id", exam.ID.String()).
					Str("question_id", qid.String()).
					Msg("Question missing from catalog, omitted from view")
				continue
			}
			sv.Questions = append(sv.Questions, q.ForStudent())
		}
		if sec.RandomizeQuestions {
			qs := sv.Questions
			a.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
		view.Sections = append(view.Sections, sv)
	}
	return view, nil
}

// markStart records the first authorization instant. Failures are logged;
// they only weaken the optional submission cutoff.
func (a *Authorizer) markStart(ctx context.Context, examID uuid.UUID, studentID int, now time.Time) {
	_, first, err := a.attempts.MarkStart(ctx, examID, studentID, now)
	if err != nil {
		a.log.Warn().Err(err).Str("exam_id", examID.String()).Int("student_id", studentID).Msg("Failed to record attempt start")
		return
	}
	if !first {
		return
	}
	if err := a.monitor.Publish(ctx, model.MonitorEvent{
		Type:      model.MonitorAttemptStarted,
		ExamID:    examID.String(),
		StudentID: studentID,
		Timestamp: now,
	}); err != nil {
		a.log.Warn().Err(err).Msg("Failed to publish attempt start")
	}
}

// IsDenial reports whether err is an authorization denial rather than a fault.
func IsDenial(err error) bool {
	var d *model.AuthorizationDenied
	return errors.As(err, &d)
}
