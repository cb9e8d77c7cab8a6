package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamService loads exam definitions through the Redis cache and handles
// the teacher's publishing workflow.
type ExamService struct {
	exams   ExamStore
	classes ClassStore
	cache   ExamCache
	catalog QuestionCatalog
	log     zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, classes ClassStore, cache ExamCache, catalog QuestionCatalog, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:   exams,
		classes: classes,
		cache:   cache,
		catalog: catalog,
		log:     log.With().Str("component", "exam_service").Logger(),
	}
}

// Get returns the exam definition. Published exams are served from the
// cache and written back on a miss. A missing exam yields model.ErrExamNotFound.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed, falling back to database")
	}
	if cached != nil {
		return cached, nil
	}

	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	// Self-heal: only published definitions live in the cache.
	if exam.IsPublished {
		if err := s.cache.Set(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam")
		}
	}
	return exam, nil
}

// GetOwned returns the exam if teacherID owns it.
func (s *ExamService) GetOwned(ctx context.Context, id uuid.UUID, teacherID int) (*model.Exam, error) {
	exam, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, model.ErrNotExamOwner
	}
	return exam, nil
}

// Create stores a draft exam in a class the teacher owns. Sections are
// optional at this point but must be well formed when given.
func (s *ExamService) Create(ctx context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error) {
	class, err := s.classes.GetByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotClassOwner
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	if class.TeacherID != teacherID {
		return nil, model.ErrNotClassOwner
	}
	if len(req.Sections) > 0 {
		if err := ValidateSections(req.Sections); err != nil {
			return nil, err
		}
	}

	exam := &model.Exam{
		Title:           req.Title,
		Instructions:    req.Instructions,
		ClassID:         req.ClassID,
		TeacherID:       teacherID,
		DurationMinutes: req.DurationMinutes,
		PassPercentage:  req.PassPercentage,
		Sections:        req.Sections,
		ScheduledAt:     req.ScheduledAt,
		AccessCode:      req.AccessCode,
		AntiCheat:       model.DefaultAntiCheatPolicy(),
	}
	if req.AntiCheat != nil {
		exam.AntiCheat = *req.AntiCheat
	}
	if exam.AccessCode != nil && *exam.AccessCode == "" {
		exam.AccessCode = nil
	}

	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("class_id", exam.ClassID).
		Int("teacher_id", teacherID).
		Msg("Exam created")
	return exam, nil
}

// ListByTeacher returns the teacher's exams, drafts included.
func (s *ExamService) ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error) {
	exams, err := s.exams.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// ListPublishedForClasses returns the published exams of the given classes
// straight from the database.
func (s *ExamService) ListPublishedForClasses(ctx context.Context, classIDs []int) ([]model.Exam, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	exams, err := s.exams.ListPublishedForClasses(ctx, classIDs)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}
	return exams, nil
}

// Publish makes the exam visible to students. Every referenced question
// must resolve in the catalog.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID, teacherID int) error {
	exam, err := s.GetOwned(ctx, id, teacherID)
	if err != nil {
		return err
	}
	if exam.IsPublished {
		return nil
	}
	if err := ValidateSections(exam.Sections); err != nil {
		return err
	}

	ids := exam.QuestionIDs()
	catalog, err := loadCatalog(ctx, s.catalog, ids)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	for _, qid := range ids {
		if _, ok := catalog[qid]; !ok {
			return fmt.Errorf("%w: %s", model.ErrUnresolvedQuestions, qid)
		}
	}

	if err := s.exams.SetPublished(ctx, id, true); err != nil {
		return fmt.Errorf("update published: %w", err)
	}
	exam.IsPublished = true
	if err := s.cache.Set(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam cache")
	}

	s.log.Info().Str("exam_id", id.String()).Int("questions", len(ids)).Msg("Exam published")
	return nil
}

// Unpublish hides the exam from students and evicts it from the cache.
func (s *ExamService) Unpublish(ctx context.Context, id uuid.UUID, teacherID int) error {
	if _, err := s.GetOwned(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.exams.SetPublished(ctx, id, false); err != nil {
		return fmt.Errorf("update published: %w", err)
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to evict exam cache")
	}

	s.log.Info().Str("exam_id", id.String()).Msg("Exam unpublished")
	return nil
}

// Schedule sets or clears the instant before which the exam is unavailable.
func (s *ExamService) Schedule(ctx context.Context, id uuid.UUID, teacherID int, at *time.Time) (*model.Exam, error) {
	exam, err := s.GetOwned(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}
	if err := s.exams.SetSchedule(ctx, id, at); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	exam.ScheduledAt = at
	if exam.IsPublished {
		if err := s.cache.Set(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to refresh exam cache")
		}
	}
	return exam, nil
}

// ReplaceSections rewrites the sections of a draft exam.
func (s *ExamService) ReplaceSections(ctx context.Context, id uuid.UUID, teacherID int, sections []model.Section) (*model.Exam, error) {
	exam, err := s.GetOwned(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}
	if exam.IsPublished {
		return nil, model.ErrExamPublished
	}
	if err := ValidateSections(sections); err != nil {
		return nil, err
	}

	ok, err := s.exams.ReplaceSections(ctx, id, sections)
	if err != nil {
		return nil, fmt.Errorf("replace sections: %w", err)
	}
	if !ok {
		// Published between the read and the write.
		return nil, model.ErrExamPublished
	}
	exam.Sections = sections
	return exam, nil
}

// ValidateSections checks that every section is named uniquely, holds at
// least one question, and that no question appears twice in the exam.
func ValidateSections(sections []model.Section) error {
	if len(sections) == 0 {
		return fmt.Errorf("%w: exam has no sections", model.ErrInvalidSections)
	}
	names := make(map[string]struct{}, len(sections))
	seen := make(map[uuid.UUID]struct{})
	for i, sec := range sections {
		if sec.Name == "" {
			return fmt.Errorf("%w: section %d has no name", model.ErrInvalidSections, i+1)
		}
		if _, dup := names[sec.Name]; dup {
			return fmt.Errorf("%w: duplicate section name %q", model.ErrInvalidSections, sec.Name)
		}
		names[sec.Name] = struct{}{}
		if len(sec.QuestionIDs) == 0 {
			return fmt.Errorf("%w: section %q has no questions", model.ErrInvalidSections, sec.Name)
		}
		for _, qid := range sec.QuestionIDs {
			if _, dup := seen[qid]; dup {
				return fmt.Errorf("%w: question %s appears more than once", model.ErrInvalidSections, qid)
			}
			seen[qid] = struct{}{}
		}
	}
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.cache.Set(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}
