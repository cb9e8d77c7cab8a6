package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

var integrityColumns = []string{"exam_id", "student_id", "attempt_id", "event_type", "details", "occurred_at"}

// IntegrityWorker bulk-inserts queued integrity events into integrity_events.
type IntegrityWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewIntegrityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "integrity_worker").Logger(),
	}
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	buffer := make([]*model.IntegrityEventRecord, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIntegrityEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var rec model.IntegrityEventRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
			// Malformed JSON cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &rec)
	}
}

// flushSafe attempts a bulk insert, then row-by-row, then requeue.
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*model.IntegrityEventRecord) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

// integrityRow converts a record into COPY column order.
func integrityRow(rec *model.IntegrityEventRecord) ([]any, error) {
	examID, err := uuid.Parse(rec.ExamID)
	if err != nil {
		return nil, err
	}
	attemptID, err := uuid.Parse(rec.AttemptID)
	if err != nil {
		return nil, err
	}
	occurred := rec.Timestamp
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return []any{examID, rec.StudentID, attemptID, string(rec.Kind), rec.Detail, occurred}, nil
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []*model.IntegrityEventRecord) error {
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		row, err := integrityRow(rec)
		if err != nil {
			// The fallback handles the bad id individually.
			return err
		}
		rows = append(rows, row)
	}

	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"integrity_events"}, integrityColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []*model.IntegrityEventRecord) {
	requeueList := make([]*model.IntegrityEventRecord, 0)

	for _, rec := range batch {
		row, err := integrityRow(rec)
		if err != nil {
			w.log.Error().Str("exam_id", rec.ExamID).Str("attempt_id", rec.AttemptID).Msg("Dropping integrity event with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO integrity_events (exam_id, student_id, attempt_id, event_type, details, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Int("student_id", rec.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, rec)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IntegrityWorker) requeue(ctx context.Context, items []*model.IntegrityEventRecord) {
	pipe := w.rdb.Pipeline()
	for _, rec := range items {
		data, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.WorkerKey.PersistIntegrityEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *IntegrityWorker) shutdown(buffer []*model.IntegrityEventRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
