package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
)

// classifyError maps a service error onto an HTTP status and envelope code.
func classifyError(err error) (int, response.ErrCode) {
	var ve *model.ValidationError
	switch {
	case errors.Is(err, model.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, model.ErrInvalidAccessCode):
		return http.StatusForbidden, response.ErrInvalidAccessCode
	case errors.Is(err, model.ErrNotEnrolled):
		return http.StatusForbidden, response.ErrNotEnrolled
	case errors.Is(err, model.ErrNotYetAvailable):
		return http.StatusForbidden, response.ErrNotYetAvailable
	case errors.Is(err, model.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, model.ErrDuplicateSubmission):
		return http.StatusConflict, response.ErrDuplicateSubmission
	case errors.Is(err, model.ErrSubmissionClosed):
		return http.StatusForbidden, response.ErrSubmissionClosed
	case errors.Is(err, model.ErrNotExamOwner):
		return http.StatusForbidden, response.ErrNotExamAuthor
	case errors.Is(err, model.ErrNotClassOwner):
		return http.StatusForbidden, response.ErrNotClassOwner
	case errors.Is(err, model.ErrExamPublished):
		return http.StatusConflict, response.ErrExamPublished
	case errors.Is(err, model.ErrUnresolvedQuestions):
		return http.StatusUnprocessableEntity, response.ErrUnresolvedQuestions
	case errors.Is(err, model.ErrInvalidSections):
		return http.StatusBadRequest, response.ErrInvalidSections
	case errors.Is(err, model.ErrSubmissionNotFound):
		return http.StatusNotFound, response.ErrSubmissionNotFound
	case errors.Is(err, model.ErrInvalidScore):
		return http.StatusBadRequest, response.ErrInvalidScore
	case errors.As(err, &ve):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, model.ErrStorageFault):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromError writes the envelope for err. Unexpected errors are logged.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		reqID, _ := c.Get(response.ContextKeyRequestID)
		log.Error().Err(err).Interface("request_id", reqID).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
