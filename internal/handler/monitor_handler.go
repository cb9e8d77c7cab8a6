package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	exams          ExamManager
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(exams ExamManager, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		exams:          exams,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:exam_id/monitor
// Streams attempt starts, integrity events and submissions of one exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}

	exam, err := h.exams.GetOwned(c.Request.Context(), examID, teacherID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	totalQuestions := len(exam.QuestionIDs())

	h.sendSnapshot(c, reqCtx, exam, totalQuestions)

	pubsub := h.monitorService.Subscribe(reqCtx, examID)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until someone has started
	hasStudents := false

	h.log.Info().Str("exam_id", examID.String()).Int("teacher_id", teacherID).Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Published payloads are already JSON; forward them as-is.
			writeSSEData(c, []byte(msg.Payload))
			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue
			}
			h.sendRefresh(c, reqCtx, examID, totalQuestions)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// sendSnapshot writes the first SSE event: exam header plus current progress.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, exam *model.Exam, totalQuestions int) {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	students := []map[string]any{}
	var totalEvents int64
	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, exam.ID); err == nil {
		students = mergeProgress(progress)
		totalEvents = progress.TotalEvents
	} else {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to fetch initial progress")
	}

	c.SSEvent("message", map[string]any{
		"type": "snapshot",
		"data": map[string]any{
			"exam": map[string]any{
				"id":              exam.ID.String(),
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"total_questions": totalQuestions,
				"anti_cheat":      exam.AntiCheat,
			},
			"total_integrity_events": totalEvents,
			"students":               students,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	c.SSEvent("message", map[string]any{
		"type":                   "refresh",
		"total_questions":        totalQuestions,
		"total_integrity_events": progress.TotalEvents,
		"students":               mergeProgress(progress),
	})
	c.Writer.Flush()
}

// mergeProgress joins answered and integrity counts per student.
func mergeProgress(progress *service.StudentProgressSnapshot) []map[string]any {
	out := make([]map[string]any, 0, len(progress.AnsweredCounts)+len(progress.IntegrityCounts))
	seen := make(map[int]struct{}, len(progress.AnsweredCounts))

	for sid, answered := range progress.AnsweredCounts {
		out = append(out, map[string]any{
			"student_id":       sid,
			"answered_count":   answered,
			"integrity_events": progress.IntegrityCounts[sid], // 0 if missing
		})
		seen[sid] = struct{}{}
	}

	// Students with events but no draft (already submitted)
	for sid, events := range progress.IntegrityCounts {
		if _, ok := seen[sid]; ok {
			continue
		}
		out = append(out, map[string]any{
			"student_id":       sid,
			"answered_count":   int64(0),
			"integrity_events": events,
		})
	}
	return out
}
