package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// attemptTTL bounds how long attempt marks, drafts and draft tombstones
// linger in Redis.
const attemptTTL = 48 * time.Hour

var errDraftClosed = errors.New("draft closed")

// DraftPayload is queued for the draft persistence worker.
type DraftPayload struct {
	ExamID    string          `json:"exam_id"`
	StudentID int             `json:"student_id"`
	Answers   json.RawMessage `json:"answers"`
	SavedAt   int64           `json:"saved_at"`
}

// AttemptRepository tracks in-flight attempts in Redis: the first
// authorization instant and the advisory answer drafts.
type AttemptRepository struct {
	rdb *redis.Client
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(rdb *redis.Client) *AttemptRepository {
	return &AttemptRepository{rdb: rdb}
}

// MarkStart records at as the attempt start unless one is already recorded.
// It returns the effective start and whether this call set it.
func (r *AttemptRepository) MarkStart(ctx context.Context, examID uuid.UUID, studentID int, at time.Time) (time.Time, bool, error) {
	key := config.CacheKey.AttemptStartKey(examID.String(), studentID)
	set, err := r.rdb.SetNX(ctx, key, at.Unix(), attemptTTL).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	if set {
		return at, true, nil
	}
	started, ok, err := r.StartedAt(ctx, examID, studentID)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok {
		return at, false, nil
	}
	return started, false, nil
}

// StartedAt returns the recorded attempt start, if any.
func (r *AttemptRepository) StartedAt(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error) {
	val, err := r.rdb.Get(ctx, config.CacheKey.AttemptStartKey(examID.String(), studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// SaveDraft mirrors the buffered answers into a Redis hash and queues them
// for persistence to PostgreSQL. It reports false without writing when the
// attempt was already submitted, including a submission racing this call.
func (r *AttemptRepository) SaveDraft(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSet) (bool, error) {
	data, err := json.Marshal(answers)
	if err != nil {
		return false, fmt.Errorf("marshal draft: %w", err)
	}
	fields := make(map[string]any, len(answers))
	for qid, a := range answers {
		enc, err := json.Marshal(a)
		if err != nil {
			return false, fmt.Errorf("marshal answer %s: %w", qid, err)
		}
		fields[qid.String()] = enc
	}
	payload, err := json.Marshal(DraftPayload{
		ExamID:    examID.String(),
		StudentID: studentID,
		Answers:   data,
		SavedAt:   time.Now().Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal draft payload: %w", err)
	}

	key := config.CacheKey.DraftAnswersKey(examID.String(), studentID)
	closed := config.CacheKey.DraftClosedKey(examID.String(), studentID)

	// WATCH the tombstone so a ClearDraft landing between the check and
	// EXEC aborts this write.
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, closed).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errDraftClosed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(fields) > 0 {
				pipe.HSet(ctx, key, fields)
				pipe.Expire(ctx, key, attemptTTL)
			}
			pipe.RPush(ctx, config.WorkerKey.PersistDraftsQueue, payload)
			return nil
		})
		return err
	}, closed)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errDraftClosed), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

// ClearDraft drops the buffered draft once the attempt is submitted and
// leaves a tombstone so late autosaves are refused.
func (r *AttemptRepository) ClearDraft(ctx context.Context, examID uuid.UUID, studentID int) error {
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.DraftClosedKey(examID.String(), studentID), 1, attemptTTL)
	pipe.Del(ctx, config.CacheKey.DraftAnswersKey(examID.String(), studentID))
	_, err := pipe.Exec(ctx)
	return err
}
