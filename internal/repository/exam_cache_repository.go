package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// examCacheTTL bounds how long a definition can outlive an eviction it raced
// with. Reads after expiry repopulate from PostgreSQL.
const examCacheTTL = 10 * time.Minute

// ExamCacheRepository keeps published exam definitions in Redis so the
// authorize and submit paths avoid a PostgreSQL round trip.
type ExamCacheRepository struct {
	rdb *redis.Client
}

// NewExamCacheRepository creates a new ExamCacheRepository.
func NewExamCacheRepository(rdb *redis.Client) *ExamCacheRepository {
	return &ExamCacheRepository{rdb: rdb}
}

// Get returns the cached definition, or nil on a cache miss.
func (r *ExamCacheRepository) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	data, err := r.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var e model.Exam
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal exam: %w", err)
	}
	return &e, nil
}

// Set caches a definition for examCacheTTL. Writers still invalidate
// explicitly; the expiry only heals a Set that lost a race with Delete.
func (r *ExamCacheRepository) Set(ctx context.Context, e *model.Exam) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return r.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(e.ID.String()), data, examCacheTTL).Err()
}

// Delete drops a cached definition.
func (r *ExamCacheRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err()
}
