package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ResultService serves results to students and grading tools to teachers.
type ResultService struct {
	exams   *ExamService
	catalog QuestionCatalog
	store   SubmissionStore
	engine  *grading.Engine
	log     zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(exams *ExamService, catalog QuestionCatalog, store SubmissionStore, engine *grading.Engine, log zerolog.Logger) *ResultService {
	return &ResultService{
		exams:   exams,
		catalog: catalog,
		store:   store,
		engine:  engine,
		log:     log.With().Str("component", "result_service").Logger(),
	}
}

// ListForStudent returns every submission of the student with section
// rollups recomputed from the current catalog.
func (s *ResultService) ListForStudent(ctx context.Context, studentID int) ([]model.StudentResult, error) {
	subs, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		return []model.StudentResult{}, nil
	}

	exams := make(map[uuid.UUID]*model.Exam)
	var ids []uuid.UUID
	for _, sub := range subs {
		if _, ok := exams[sub.ExamID]; ok {
			continue
		}
		exam, err := s.exams.Get(ctx, sub.ExamID)
		if err != nil {
			return nil, fmt.Errorf("load exam %s: %w", sub.ExamID, err)
		}
		exams[sub.ExamID] = exam
		ids = append(ids, exam.QuestionIDs()...)
	}

	catalog, err := loadCatalog(ctx, s.catalog, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	results := make([]model.StudentResult, 0, len(subs))
	for _, sub := range subs {
		exam := exams[sub.ExamID]
		results = append(results, model.StudentResult{
			SubmissionID:  sub.ID,
			ExamID:        sub.ExamID,
			ExamTitle:     sub.ExamTitle,
			TotalScore:    sub.Score,
			MaxScore:      sub.MaxScore,
			Percentage:    sub.Percentage,
			IsPassed:      sub.IsPassed,
			SubmittedAt:   sub.SubmittedAt,
			SectionScores: s.engine.Sections(exam, catalog, sub.Answers),
			Feedback:      sub.Feedback,
		})
	}
	return results, nil
}

// ListForExam returns a page of an exam's submissions for its owner.
func (s *ResultService) ListForExam(ctx context.Context, examID uuid.UUID, teacherID, page, perPage int) ([]model.SubmissionSummary, int64, error) {
	if _, err := s.exams.GetOwned(ctx, examID, teacherID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.store.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	if items == nil {
		items = []model.SubmissionSummary{}
	}
	return items, total, nil
}

// Analytics summarizes an exam's submissions for its owner.
func (s *ResultService) Analytics(ctx context.Context, examID uuid.UUID, teacherID int) (*model.ExamAnalytics, error) {
	if _, err := s.exams.GetOwned(ctx, examID, teacherID); err != nil {
		return nil, err
	}
	a, err := s.store.Analytics(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("exam analytics: %w", err)
	}
	return a, nil
}

// GradeOverride replaces the score of a submission. A submission of an exam
// the teacher does not own is reported as not found. The stored answers and
// the automatic score are kept.
func (s *ResultService) GradeOverride(ctx context.Context, submissionID uuid.UUID, teacherID int, score float64, feedback *string) (*model.Submission, error) {
	sub, exam, err := s.ownedSubmission(ctx, submissionID, teacherID)
	if err != nil {
		return nil, err
	}

	if score < 0 || score > sub.MaxScore {
		return nil, fmt.Errorf("%w: must be between 0 and %g", model.ErrInvalidScore, sub.MaxScore)
	}

	sub.OverrideScore = &score
	sub.Score = score
	sub.Percentage = grading.Percentage(score, sub.MaxScore)
	sub.IsPassed = grading.Passed(sub.Percentage, exam.PassPercentage)
	if feedback != nil {
		sub.Feedback = feedback
	}
	sub.GradedBy = &teacherID

	if err := s.store.UpdateOverride(ctx, sub); err != nil {
		if errors.Is(err, model.ErrSubmissionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update grade: %w", err)
	}

	s.log.Info().
		Str("submission_id", submissionID.String()).
		Int("teacher_id", teacherID).
		Float64("auto_score", sub.AutoScore).
		Float64("score", score).
		Msg("Submission grade overridden")
	return sub, nil
}

// GetForTeacher returns the stored answers of one submission with correctness
// recomputed against the current catalog. Ownership follows GradeOverride.
func (s *ResultService) GetForTeacher(ctx context.Context, submissionID uuid.UUID, teacherID int) (*model.SubmissionDetail, error) {
	sub, exam, err := s.ownedSubmission(ctx, submissionID, teacherID)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(ctx, s.catalog, exam.QuestionIDs())
	if err != nil {
		return nil, err
	}
	res, missing := s.engine.GradeRefs(exam.QuestionIDs(), catalog, sub.Answers)
	if len(missing) > 0 {
		s.log.Warn().
			Str("submission_id", submissionID.String()).
			Int("missing", len(missing)).
			Msg("Submission references questions missing from catalog")
	}

	detail := &model.SubmissionDetail{
		Submission:       sub,
		ExamTitle:        exam.Title,
		Questions:        make([]model.GradedAnswer, 0, len(res.PerQuestion)),
		SectionScores:    s.engine.Sections(exam, catalog, sub.Answers),
		MissingQuestions: missing,
	}
	for _, sec := range exam.Sections {
		for _, qid := range sec.QuestionIDs {
			ga := model.GradedAnswer{
				QuestionID:  qid,
				SectionName: sec.Name,
				IsCorrect:   res.PerQuestion[qid],
			}
			if q, ok := catalog[qid]; ok {
				ga.QuestionText = q.Text
				ga.QuestionType = q.Type
				ga.Options = q.Options
				ga.CorrectAnswers = q.CorrectAnswers
				ga.Points = q.Weight()
			}
			if a, ok := sub.Answers[qid]; ok {
				ga.Answer = &a
			}
			detail.Questions = append(detail.Questions, ga)
		}
	}
	return detail, nil
}

// ownedSubmission loads a submission and its exam. Submissions that do not
// exist, whose exam is gone, or whose exam belongs to another teacher are all
// reported as ErrSubmissionNotFound.
func (s *ResultService) ownedSubmission(ctx context.Context, submissionID uuid.UUID, teacherID int) (*model.Submission, *model.Exam, error) {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, model.ErrSubmissionNotFound
		}
		return nil, nil, fmt.Errorf("get submission: %w", err)
	}

	exam, err := s.exams.Get(ctx, sub.ExamID)
	if err != nil {
		if errors.Is(err, model.ErrExamNotFound) {
			return nil, nil, model.ErrSubmissionNotFound
		}
		return nil, nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, nil, model.ErrSubmissionNotFound
	}
	return sub, exam, nil
}
