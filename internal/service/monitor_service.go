package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// MonitorStore is the data access behind the live monitor.
type MonitorStore interface {
	MonitorPublisher
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
	EnqueueIntegrityEvents(ctx context.Context, events []model.IntegrityEventRecord) error
	GetDraftAnswerCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
	GetIntegrityCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	store MonitorStore
	log   zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store MonitorStore, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		store: store,
		log:   log.With().Str("component", "monitor_service").Logger(),
	}
}

// StudentProgressSnapshot holds the answered count and integrity event count for every active student.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	IntegrityCounts map[int]int64 // student_id → integrity_events
	TotalEvents     int64
}

// GetStudentProgress returns draft answer counts and integrity event counts.
// Both fetches run in parallel.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		IntegrityCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		integrityCounts map[int]int64
		answeredErr     error
		integrityErr    error
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.store.GetDraftAnswerCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		integrityCounts, integrityErr = s.store.GetIntegrityCounts(ctx, examID)
	}()
	wg.Wait()

	// Answered counts are critical; integrity counts are best-effort
	if answeredErr != nil {
		return nil, answeredErr
	}
	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if integrityErr != nil {
		s.log.Warn().Err(integrityErr).Str("exam_id", examID.String()).Msg("Failed to fetch integrity counts")
	} else if integrityCounts != nil {
		snapshot.IntegrityCounts = integrityCounts
		for _, count := range integrityCounts {
			snapshot.TotalEvents += count
		}
	}

	return snapshot, nil
}

// RecordIntegrityEvent queues an event captured by a live attempt for
// persistence and notifies teachers watching the exam.
func (s *MonitorService) RecordIntegrityEvent(ctx context.Context, examID uuid.UUID, studentID int, attemptID uuid.UUID, ev model.IntegrityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	rec := model.IntegrityEventRecord{
		ExamID:    examID.String(),
		StudentID: studentID,
		AttemptID: attemptID.String(),
		Kind:      ev.Kind,
		Detail:    ev.Detail,
		Timestamp: ev.Timestamp,
	}
	if err := s.store.EnqueueIntegrityEvents(ctx, []model.IntegrityEventRecord{rec}); err != nil {
		s.log.Error().Err(err).Str("exam_id", rec.ExamID).Int("student_id", studentID).Msg("Failed to enqueue integrity event")
	}
	if err := s.store.Publish(ctx, model.MonitorEvent{
		Type:      model.MonitorIntegrity,
		ExamID:    rec.ExamID,
		StudentID: studentID,
		Data:      ev,
		Timestamp: ev.Timestamp,
	}); err != nil {
		s.log.Warn().Err(err).Msg("Failed to publish integrity event")
	}
}

// Subscribe attaches to the exam's live channel. Callers must Close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.store.Subscribe(ctx, examID)
}
