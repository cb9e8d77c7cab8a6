package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const submissionColumns = `s.id, s.attempt_id, s.exam_id, s.student_id, s.answers, s.auto_score,
	s.score, s.max_score, s.percentage, s.is_passed, s.tab_switches, s.fullscreen_exits,
	s.suspicious_activities, s.is_suspicious, s.feedback, s.override_score, s.graded_by,
	s.graded_at, s.submitted_at`

// StudentSubmission is a submission joined with its exam title.
type StudentSubmission struct {
	model.Submission
	ExamTitle string
}

// SubmissionRepository persists submission records. The (exam_id,
// student_id) unique constraint is the only duplicate guard.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Insert stores a fully graded submission. A conflicting row yields
// model.ErrDuplicateSubmission; any other failure wraps model.ErrStorageFault.
func (r *SubmissionRepository) Insert(ctx context.Context, s *model.Submission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	activities := s.Integrity.SuspiciousActivities
	if activities == nil {
		activities = []model.IntegrityEvent{}
	}
	events, err := json.Marshal(activities)
	if err != nil {
		return fmt.Errorf("encode activities: %w", err)
	}

	// The caller's clock decides submitted_at; it already gated the cutoff.
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now()
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions (attempt_id, exam_id, student_id, answers, auto_score, score,
		                          max_score, percentage, is_passed, tab_switches, fullscreen_exits,
		                          suspicious_activities, is_suspicious, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, submitted_at`,
		s.AttemptID, s.ExamID, s.StudentID, answers, s.AutoScore, s.Score,
		s.MaxScore, s.Percentage, s.IsPassed, s.Integrity.TabSwitches, s.Integrity.FullscreenExits,
		events, s.Integrity.IsSuspicious, s.SubmittedAt,
	).Scan(&s.ID, &s.SubmittedAt)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return model.ErrDuplicateSubmission
	default:
		return fmt.Errorf("insert submission: %w: %w", model.ErrStorageFault, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Exists reports whether a submission exists for (exam, student).
func (r *SubmissionRepository) Exists(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&ok)
	return ok, err
}

func scanSubmission(row pgx.Row, extra ...any) (*model.Submission, error) {
	var (
		s          model.Submission
		answers    []byte
		activities []byte
	)
	dest := []any{&s.ID, &s.AttemptID, &s.ExamID, &s.StudentID, &answers, &s.AutoScore,
		&s.Score, &s.MaxScore, &s.Percentage, &s.IsPassed, &s.Integrity.TabSwitches, &s.Integrity.FullscreenExits,
		&activities, &s.Integrity.IsSuspicious, &s.Feedback, &s.OverrideScore, &s.GradedBy,
		&s.GradedAt, &s.SubmittedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(activities, &s.Integrity.SuspiciousActivities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a submission. Returns pgx.ErrNoRows when absent.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions s WHERE s.id = $1`, id))
}

// ListByStudent returns a student's submissions, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]StudentSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`, e.title
		 FROM submissions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.student_id = $1
		 ORDER BY s.submitted_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentSubmission
	for rows.Next() {
		var title string
		s, err := scanSubmission(rows, &title)
		if err != nil {
			return nil, err
		}
		out = append(out, StudentSubmission{Submission: *s, ExamTitle: title})
	}
	return out, rows.Err()
}

// ListByExam returns a page of an exam's submissions with student names.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SubmissionSummary, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.student_id, st.name, s.score, s.max_score, s.percentage, s.is_passed,
		        s.is_suspicious, s.tab_switches, s.override_score IS NOT NULL, s.submitted_at
		 FROM submissions s
		 JOIN students st ON st.id = s.student_id
		 WHERE s.exam_id = $1
		 ORDER BY st.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.SubmissionSummary
	for rows.Next() {
		var s model.SubmissionSummary
		if err := rows.Scan(&s.SubmissionID, &s.StudentID, &s.StudentName, &s.Score, &s.MaxScore,
			&s.Percentage, &s.IsPassed, &s.IsSuspicious, &s.TabSwitches, &s.Overridden, &s.SubmittedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Analytics aggregates an exam's submissions.
func (r *SubmissionRepository) Analytics(ctx context.Context, examID uuid.UUID) (*model.ExamAnalytics, error) {
	a := &model.ExamAnalytics{ExamID: examID}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(percentage), 0)::float8,
		        COALESCE(AVG(CASE WHEN is_passed THEN 100.0 ELSE 0 END), 0)::float8,
		        COUNT(*) FILTER (WHERE is_suspicious)
		 FROM submissions WHERE exam_id = $1`, examID,
	).Scan(&a.TotalSubmissions, &a.AveragePercentage, &a.PassRate, &a.SuspiciousCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateOverride stores a teacher's grade. Answers and auto_score are untouched.
func (r *SubmissionRepository) UpdateOverride(ctx context.Context, s *model.Submission) error {
	now := time.Now()
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET override_score = $1, score = $2, percentage = $3, is_passed = $4,
		     feedback = $5, graded_by = $6, graded_at = $7
		 WHERE id = $8`,
		s.OverrideScore, s.Score, s.Percentage, s.IsPassed,
		s.Feedback, s.GradedBy, now, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSubmissionNotFound
	}
	s.GradedAt = &now
	return nil
}
