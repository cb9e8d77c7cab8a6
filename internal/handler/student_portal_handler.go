package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// ExamAuthorizer is satisfied by *service.Authorizer.
type ExamAuthorizer interface {
	Authorize(ctx context.Context, examID uuid.UUID, studentID int, accessCode string) (*model.ExamView, error)
	ListAvailable(ctx context.Context, studentID int) ([]model.StudentExam, error)
}

// Submitter is satisfied by *service.SubmissionService.
type Submitter interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error)
}

// StudentResults is satisfied by *service.ResultService.
type StudentResults interface {
	ListForStudent(ctx context.Context, studentID int) ([]model.StudentResult, error)
}

// AuthorizeRequest carries the optional access code.
type AuthorizeRequest struct {
	AccessCode string `json:"access_code" binding:"max=64"`
}

// StudentPortalHandler handles student-facing endpoints (exam taking, results).
type StudentPortalHandler struct {
	authorizer ExamAuthorizer
	submitter  Submitter
	results    StudentResults
	log        zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	authorizer ExamAuthorizer,
	submitter Submitter,
	results StudentResults,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		authorizer: authorizer,
		submitter:  submitter,
		results:    results,
		log:        log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/student/exams
// Lists the published exams of the student's classes with their status.
func (h *StudentPortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	exams, err := h.authorizer.ListAvailable(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// AuthorizeExam godoc
// POST /api/v1/student/exams/:exam_id/authorize
// Checks access and returns the student view of the exam.
func (h *StudentPortalHandler) AuthorizeExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req AuthorizeRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	view, err := h.authorizer.Authorize(c.Request.Context(), examID, claims.UserID, req.AccessCode)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": view})
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades and stores the attempt. Only one submission per exam is accepted.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	req.ExamID = examID
	req.StudentID = claims.UserID

	result, err := h.submitter.Submit(c.Request.Context(), req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// GetResults godoc
// GET /api/v1/student/results
// Returns every graded submission with per-section scores.
func (h *StudentPortalHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.results.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
