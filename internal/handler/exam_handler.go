package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// ExamManager is satisfied by *service.ExamService.
type ExamManager interface {
	Create(ctx context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error)
	ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error)
	GetOwned(ctx context.Context, id uuid.UUID, teacherID int) (*model.Exam, error)
	Publish(ctx context.Context, id uuid.UUID, teacherID int) error
	Unpublish(ctx context.Context, id uuid.UUID, teacherID int) error
	Schedule(ctx context.Context, id uuid.UUID, teacherID int, at *time.Time) (*model.Exam, error)
	ReplaceSections(ctx context.Context, id uuid.UUID, teacherID int, sections []model.Section) (*model.Exam, error)
}

// Grader is satisfied by *service.ResultService.
type Grader interface {
	ListForExam(ctx context.Context, examID uuid.UUID, teacherID, page, perPage int) ([]model.SubmissionSummary, int64, error)
	Analytics(ctx context.Context, examID uuid.UUID, teacherID int) (*model.ExamAnalytics, error)
	GetForTeacher(ctx context.Context, submissionID uuid.UUID, teacherID int) (*model.SubmissionDetail, error)
	GradeOverride(ctx context.Context, submissionID uuid.UUID, teacherID int, score float64, feedback *string) (*model.Submission, error)
}

// ExamHandler handles the teacher's exam and grading endpoints.
type ExamHandler struct {
	exams  ExamManager
	grader Grader
	log    zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams ExamManager, grader Grader, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams:  exams,
		grader: grader,
		log:    log.With().Str("component", "exam_handler").Logger(),
	}
}

// teacherAndExam extracts the teacher id and the :exam_id param, writing the
// failure response itself.
func teacherAndExam(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

// CreateExam godoc
// POST /api/v1/teacher/exams
// Creates an unpublished exam in one of the teacher's classes.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// ListExams godoc
// GET /api/v1/teacher/exams
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	exams, err := h.exams.ListByTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}
	exam, err := h.exams.GetOwned(c.Request.Context(), examID, teacherID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// PublishExam godoc
// POST /api/v1/teacher/exams/:exam_id/publish
func (h *ExamHandler) PublishExam(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}
	if err := h.exams.Publish(c.Request.Context(), examID, teacherID); err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Exam published"})
}

// UnpublishExam godoc
// POST /api/v1/teacher/exams/:exam_id/unpublish
func (h *ExamHandler) UnpublishExam(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}
	if err := h.exams.Unpublish(c.Request.Context(), examID, teacherID); err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Exam unpublished"})
}

// ScheduleExam godoc
// PUT /api/v1/teacher/exams/:exam_id/schedule
// A null scheduled_at makes the exam available immediately.
func (h *ExamHandler) ScheduleExam(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}

	var req model.ScheduleExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Schedule(c.Request.Context(), examID, teacherID, req.ScheduledAt)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ReplaceSections godoc
// PUT /api/v1/teacher/exams/:exam_id/sections
func (h *ExamHandler) ReplaceSections(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}

	var req model.ReplaceSectionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.ReplaceSections(c.Request.Context(), examID, teacherID, req.Sections)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListSubmissions godoc
// GET /api/v1/teacher/exams/:exam_id/submissions?page=&per_page=
func (h *ExamHandler) ListSubmissions(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	items, total, err := h.grader.ListForExam(c.Request.Context(), examID, teacherID, page, perPage)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": items}, response.NewPagination(page, perPage, total))
}

// GetAnalytics godoc
// GET /api/v1/teacher/exams/:exam_id/analytics
func (h *ExamHandler) GetAnalytics(c *gin.Context) {
	teacherID, examID, ok := teacherAndExam(c)
	if !ok {
		return
	}
	a, err := h.grader.Analytics(c.Request.Context(), examID, teacherID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"analytics": a})
}

// teacherAndSubmission is teacherAndExam for the :submission_id param.
func teacherAndSubmission(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}
	submissionID, err := uuid.Parse(c.Param("submission_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, submissionID, true
}

// GetSubmission godoc
// GET /api/v1/teacher/submissions/:submission_id
// Returns the stored answers with correctness against the current answer key.
func (h *ExamHandler) GetSubmission(c *gin.Context) {
	teacherID, submissionID, ok := teacherAndSubmission(c)
	if !ok {
		return
	}
	detail, err := h.grader.GetForTeacher(c.Request.Context(), submissionID, teacherID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// GradeSubmission godoc
// POST /api/v1/teacher/submissions/:submission_id/grade
// Overrides the automatic score. Answers are never modified.
func (h *ExamHandler) GradeSubmission(c *gin.Context) {
	teacherID, submissionID, ok := teacherAndSubmission(c)
	if !ok {
		return
	}

	var req model.GradeOverrideRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.grader.GradeOverride(c.Request.Context(), submissionID, teacherID, *req.Score, req.Feedback)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}
