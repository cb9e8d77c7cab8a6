package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

const examColumns = `id, title, instructions, class_id, teacher_id, duration_minutes,
	pass_percentage, sections, scheduled_at, access_code, anti_cheat, is_published,
	created_at, updated_at`

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	var (
		e         model.Exam
		sections  []byte
		antiCheat []byte
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Instructions, &e.ClassID, &e.TeacherID, &e.DurationMinutes,
		&e.PassPercentage, &sections, &e.ScheduledAt, &e.AccessCode, &antiCheat, &e.IsPublished,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &e.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	e.AntiCheat = model.DefaultAntiCheatPolicy()
	if len(antiCheat) > 0 {
		if err := json.Unmarshal(antiCheat, &e.AntiCheat); err != nil {
			return nil, fmt.Errorf("decode anti_cheat: %w", err)
		}
	}
	return &e, nil
}

// GetByID retrieves an exam by its UUID. Returns pgx.ErrNoRows when absent.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// ListPublished returns all published exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_published ORDER BY created_at DESC`)
}

// ListPublishedForClasses returns the published exams of the given classes,
// earliest schedule first.
func (r *ExamRepository) ListPublishedForClasses(ctx context.Context, classIDs []int) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE is_published AND class_id = ANY($1)
		 ORDER BY scheduled_at ASC NULLS FIRST, title`, classIDs)
}

// ListByTeacher returns every exam the teacher created, newest first.
func (r *ExamRepository) ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams WHERE teacher_id = $1 ORDER BY created_at DESC`, teacherID)
}

func (r *ExamRepository) list(ctx context.Context, sql string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam definition.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.Sections == nil {
		e.Sections = []model.Section{}
	}
	sections, err := json.Marshal(e.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	antiCheat, err := json.Marshal(e.AntiCheat)
	if err != nil {
		return fmt.Errorf("encode anti_cheat: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, instructions, class_id, teacher_id, duration_minutes,
		                    pass_percentage, sections, scheduled_at, access_code, anti_cheat, is_published)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Instructions, e.ClassID, e.TeacherID, e.DurationMinutes,
		e.PassPercentage, sections, e.ScheduledAt, e.AccessCode, antiCheat, e.IsPublished,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// SetPublished flips the published flag.
func (r *ExamRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_published = $1, updated_at = NOW() WHERE id = $2`,
		published, id)
	return err
}

// SetSchedule sets or clears scheduled_at.
func (r *ExamRepository) SetSchedule(ctx context.Context, id uuid.UUID, at *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET scheduled_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id)
	return err
}

// ReplaceSections overwrites the sections of an unpublished exam. It reports
// false when the exam is missing or already published.
func (r *ExamRepository) ReplaceSections(ctx context.Context, id uuid.UUID, sections []model.Section) (bool, error) {
	data, err := json.Marshal(sections)
	if err != nil {
		return false, fmt.Errorf("encode sections: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET sections = $1, updated_at = NOW()
		 WHERE id = $2 AND NOT is_published`,
		data, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
