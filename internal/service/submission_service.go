package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/integrity"
	"github.com/stemsi/exstem-engine/internal/model"
)

// CutoffPolicy rejects submissions that arrive after the attempt window.
// A zero value disables the check.
type CutoffPolicy struct {
	Enabled bool
	Grace   time.Duration
}

// SubmissionService validates, grades and persists attempts.
type SubmissionService struct {
	exams       *ExamService
	catalog     QuestionCatalog
	enrollments EnrollmentChecker
	store       SubmissionStore
	attempts    AttemptTracker
	monitor     MonitorPublisher
	engine      *grading.Engine
	cutoff      CutoffPolicy
	log         zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	exams *ExamService,
	catalog QuestionCatalog,
	enrollments EnrollmentChecker,
	store SubmissionStore,
	attempts AttemptTracker,
	monitor MonitorPublisher,
	engine *grading.Engine,
	cutoff CutoffPolicy,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		exams:       exams,
		catalog:     catalog,
		enrollments: enrollments,
		store:       store,
		attempts:    attempts,
		monitor:     monitor,
		engine:      engine,
		cutoff:      cutoff,
		log:         log.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit grades and stores req. Answers that reference unknown questions or
// do not fit their question are listed in the result and left ungraded; the
// rest of the attempt is still accepted. A second accepted submission for the
// same exam and student yields model.ErrDuplicateSubmission.
func (s *SubmissionService) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	exam, err := s.exams.Get(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return nil, model.ErrExamNotFound
	}

	approved, err := s.enrollments.IsApproved(ctx, exam.ClassID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !approved {
		return nil, model.ErrNotEnrolled
	}

	now := s.now()
	if err := s.checkCutoff(ctx, exam, req.StudentID, now); err != nil {
		return nil, err
	}

	ids := exam.QuestionIDs()
	catalog, err := loadCatalog(ctx, s.catalog, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w: %w", model.ErrStorageFault, err)
	}

	accepted, rejected := filterAnswers(exam, catalog, req.Answers)
	rejected = append(slices.Clone(req.Malformed), rejected...)

	result, missing := s.engine.GradeRefs(ids, catalog, accepted)
	if len(missing) > 0 {
		s.log.Warn().
			Str("exam_id", exam.ID.String()).
			Interface("question_ids", missing).
			Msg("Questions missing from catalog, graded as incorrect")
	}

	pct := grading.Percentage(result.Score, result.MaxScore)
	sub := &model.Submission{
		AttemptID:   req.AttemptID,
		ExamID:      exam.ID,
		StudentID:   req.StudentID,
		Answers:     accepted,
		AutoScore:   result.Score,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Percentage:  pct,
		IsPassed:    grading.Passed(pct, exam.PassPercentage),
		SubmittedAt: now,
		Integrity:   integrity.Evaluate(req.Integrity, exam.AntiCheat),
	}

	if err := s.store.Insert(ctx, sub); err != nil {
		if errors.Is(err, model.ErrDuplicateSubmission) {
			return nil, err
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("student_id", req.StudentID).
		Float64("score", sub.Score).
		Float64("max_score", sub.MaxScore).
		Bool("suspicious", sub.Integrity.IsSuspicious).
		Int("rejected", len(rejected)).
		Msg("Submission accepted")

	s.afterCommit(ctx, sub)

	return &model.SubmitResult{Submission: sub, Rejected: rejected}, nil
}

// checkCutoff enforces start + duration + grace when enabled. Attempts with
// no recorded start are let through.
func (s *SubmissionService) checkCutoff(ctx context.Context, exam *model.Exam, studentID int, now time.Time) error {
	if !s.cutoff.Enabled {
		return nil
	}
	started, ok, err := s.attempts.StartedAt(ctx, exam.ID, studentID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to read attempt start, skipping cutoff")
		return nil
	}
	if !ok {
		return nil
	}
	deadline := started.Add(time.Duration(exam.DurationMinutes)*time.Minute + s.cutoff.Grace)
	if now.After(deadline) {
		return model.ErrSubmissionClosed
	}
	return nil
}

// afterCommit runs the post-insert side effects. None of them can undo the
// submission, so failures are only logged.
func (s *SubmissionService) afterCommit(ctx context.Context, sub *model.Submission) {
	if err := s.attempts.ClearDraft(ctx, sub.ExamID, sub.StudentID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", sub.ExamID.String()).Int("student_id", sub.StudentID).Msg("Failed to clear draft")
	}
	if err := s.monitor.Publish(ctx, model.MonitorEvent{
		Type:      model.MonitorSubmitted,
		ExamID:    sub.ExamID.String(),
		StudentID: sub.StudentID,
		Data: map[string]any{
			"score":         sub.Score,
			"max_score":     sub.MaxScore,
			"percentage":    sub.Percentage,
			"is_suspicious": sub.Integrity.IsSuspicious,
		},
		Timestamp: sub.SubmittedAt,
	}); err != nil {
		s.log.Warn().Err(err).Msg("Failed to publish submission event")
	}
}

// filterAnswers keeps answers that reference a question of the exam and fit
// its type.
func filterAnswers(exam *model.Exam, catalog map[uuid.UUID]model.Question, answers model.AnswerSet) (model.AnswerSet, []model.AnswerRejection) {
	inExam := make(map[uuid.UUID]struct{})
	for _, id := range exam.QuestionIDs() {
		inExam[id] = struct{}{}
	}

	accepted := make(model.AnswerSet, len(answers))
	var rejected []model.AnswerRejection
	for qid, a := range answers {
		if _, ok := inExam[qid]; !ok {
			rejected = append(rejected, model.AnswerRejection{QuestionID: qid, Reason: "question is not part of this exam"})
			continue
		}
		q, ok := catalog[qid]
		if !ok {
			rejected = append(rejected, model.AnswerRejection{QuestionID: qid, Reason: "question no longer exists"})
			continue
		}
		if err := a.Validate(&q); err != nil {
			var ve *model.ValidationError
			reason := err.Error()
			if errors.As(err, &ve) {
				reason = ve.Reason
			}
			rejected = append(rejected, model.AnswerRejection{QuestionID: qid, Reason: reason})
			continue
		}
		accepted[qid] = a
	}
	return accepted, rejected
}
