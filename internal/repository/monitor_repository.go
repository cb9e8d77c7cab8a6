package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// MonitorRepository provides data access for the live exam monitor.
// It combines PostgreSQL (persisted drafts and events) and Redis (Pub/Sub
// and the integrity event queue).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// Publish broadcasts ev on the exam's monitor channel.
func (r *MonitorRepository) Publish(ctx context.Context, ev model.MonitorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return r.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID), data).Err()
}

// Subscribe attaches to the exam's monitor channel. Callers must Close it.
func (r *MonitorRepository) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// EnqueueIntegrityEvents queues events for the bulk persistence worker.
func (r *MonitorRepository) EnqueueIntegrityEvents(ctx context.Context, events []model.IntegrityEventRecord) error {
	if len(events) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal integrity event: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistIntegrityEventsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetDraftAnswerCounts returns the number of persisted draft answers for
// every student with a draft in the given exam.
func (r *MonitorRepository) GetDraftAnswerCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, (SELECT COUNT(*) FROM jsonb_object_keys(answers))
		 FROM attempt_drafts
		 WHERE exam_id = $1`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		result[sid] = count
	}
	return result, rows.Err()
}

// GetIntegrityCounts returns the number of integrity events recorded for
// each student in the given exam.
func (r *MonitorRepository) GetIntegrityCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM integrity_events
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
