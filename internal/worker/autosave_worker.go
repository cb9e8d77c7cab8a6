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
	"github.com/stemsi/exstem-engine/internal/repository"
)

const (
	DraftBatchSize    = 100
	DraftBatchTimeout = 2 * time.Second
	DraftPollTimeout  = 1 * time.Second
)

// AutosaveWorker consumes persist_drafts_queue and UPSERTs attempt drafts to
// PostgreSQL. Drafts of attempts that already have a submission are skipped.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

type draftKey struct {
	examID    uuid.UUID
	studentID int
}

type draftRow struct {
	examID    uuid.UUID
	studentID int
	answers   json.RawMessage
	savedAt   time.Time
	raw       string
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]draftRow, 0, DraftBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= DraftBatchSize || time.Since(lastFlush) >= DraftBatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(shutdownCtx, batch)
			w.drain(shutdownCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, DraftPollTimeout, config.WorkerKey.PersistDraftsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		row, err := decodeDraft(result[1])
		if err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed draft")
			continue
		}
		batch = append(batch, row)
	}
}

func decodeDraft(raw string) (draftRow, error) {
	var p repository.DraftPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return draftRow{}, err
	}
	examID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return draftRow{}, err
	}
	answers := p.Answers
	if len(answers) == 0 || string(answers) == "null" {
		answers = json.RawMessage(`{}`)
	}
	return draftRow{
		examID:    examID,
		studentID: p.StudentID,
		answers:   answers,
		savedAt:   time.Unix(p.SavedAt, 0),
		raw:       raw,
	}, nil
}

// coalesceDrafts keeps only the newest draft per attempt, preserving the
// order in which attempts first appeared.
func coalesceDrafts(batch []draftRow) []draftRow {
	index := make(map[draftKey]int, len(batch))
	out := make([]draftRow, 0, len(batch))
	for _, row := range batch {
		k := draftKey{row.examID, row.studentID}
		if i, ok := index[k]; ok {
			if !row.savedAt.Before(out[i].savedAt) {
				out[i] = row
			}
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

const upsertDraftSQL = `INSERT INTO attempt_drafts (exam_id, student_id, answers, updated_at)
	SELECT $1, $2, $3, $4
	WHERE NOT EXISTS (SELECT 1 FROM submissions WHERE exam_id = $1 AND student_id = $2)
	ON CONFLICT (exam_id, student_id) DO UPDATE
	SET answers = EXCLUDED.answers, updated_at = EXCLUDED.updated_at
	WHERE attempt_drafts.updated_at <= EXCLUDED.updated_at`

func (w *AutosaveWorker) flush(ctx context.Context, batch []draftRow) {
	if len(batch) == 0 {
		return
	}
	rows := coalesceDrafts(batch)

	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(upsertDraftSQL, r.examID, r.studentID, r.answers, r.savedAt)
	}

	br := w.pool.SendBatch(ctx, b)
	failed := make([]draftRow, 0)
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			w.log.Error().Err(err).
				Int("student_id", r.studentID).
				Str("exam_id", r.examID.String()).
				Msg("Persist error")
			failed = append(failed, r)
		}
	}
	if err := br.Close(); err != nil {
		w.log.Warn().Err(err).Msg("Batch close error")
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *AutosaveWorker) requeue(ctx context.Context, rows []draftRow) {
	pipe := w.rdb.Pipeline()
	for _, r := range rows {
		pipe.RPush(ctx, config.WorkerKey.PersistDraftsQueue, r.raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(rows)).Msg("Failed to requeue drafts")
		return
	}
	w.log.Info().Int("count", len(rows)).Msg("Requeued drafts, retrying in 5s")
	time.Sleep(5 * time.Second)
}

// drain persists whatever is still queued before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	batch := make([]draftRow, 0, DraftBatchSize)
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistDraftsQueue).Result()
		if err != nil {
			break
		}
		row, err := decodeDraft(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		batch = append(batch, row)
		if len(batch) >= DraftBatchSize {
			w.flush(ctx, batch)
			batch = batch[:0]
		}
	}
	w.flush(ctx, batch)
}
