package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionRepository is the read side of the question catalog.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByIDs returns the questions whose ids are in ids. Missing ids are
// simply absent from the result; order is unspecified.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, teacher_id, question_text, question_type, options, correct_answers, points
		 FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TeacherID, &q.Text, &q.Type, &q.Options, &q.CorrectAnswers, &q.Points); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.Points <= 0 {
		q.Points = 1
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (teacher_id, question_text, question_type, options, correct_answers, points)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.TeacherID, q.Text, q.Type, q.Options, q.CorrectAnswers, q.Points,
	).Scan(&q.ID)
}
