package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// EnrollmentRepository answers class membership questions.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// IsApproved reports whether the student has an approved enrollment in the class.
func (r *EnrollmentRepository) IsApproved(ctx context.Context, classID, studentID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM enrollments
		     WHERE class_id = $1 AND student_id = $2 AND status = $3
		 )`, classID, studentID, model.EnrollmentApproved,
	).Scan(&ok)
	return ok, err
}

// ApprovedClassIDs lists the classes in which the student is approved.
func (r *EnrollmentRepository) ApprovedClassIDs(ctx context.Context, studentID int) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT class_id FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY class_id`,
		studentID, model.EnrollmentApproved)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// Upsert records an enrollment status. Used by seeding and tests.
func (r *EnrollmentRepository) Upsert(ctx context.Context, classID, studentID int, status model.EnrollmentStatus) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enrollments (class_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (class_id, student_id) DO UPDATE SET status = EXCLUDED.status`,
		classID, studentID, status)
	return err
}
