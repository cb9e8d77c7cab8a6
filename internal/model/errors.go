package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DenialReason identifies why an authorization was refused.
type DenialReason string

const (
	DenialNotFound          DenialReason = "not_found"
	DenialInvalidAccessCode DenialReason = "invalid_access_code"
	DenialForbidden         DenialReason = "forbidden"
	DenialNotYetAvailable   DenialReason = "not_yet_available"
	DenialAlreadySubmitted  DenialReason = "already_submitted"
)

// AuthorizationDenied is returned when a student may not start an attempt.
type AuthorizationDenied struct {
	Reason DenialReason
}

func (e *AuthorizationDenied) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// Is matches any *AuthorizationDenied with the same reason.
func (e *AuthorizationDenied) Is(target error) bool {
	t, ok := target.(*AuthorizationDenied)
	return ok && t.Reason == e.Reason
}

var (
	ErrExamNotFound      = &AuthorizationDenied{Reason: DenialNotFound}
	ErrInvalidAccessCode = &AuthorizationDenied{Reason: DenialInvalidAccessCode}
	ErrNotEnrolled       = &AuthorizationDenied{Reason: DenialForbidden}
	ErrNotYetAvailable   = &AuthorizationDenied{Reason: DenialNotYetAvailable}
	ErrAlreadySubmitted  = &AuthorizationDenied{Reason: DenialAlreadySubmitted}
)

// ValidationError rejects an answer that does not fit its question.
type ValidationError struct {
	QuestionID uuid.UUID
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for question %s: %s", e.QuestionID, e.Reason)
}

var (
	ErrDuplicateSubmission = errors.New("submission already exists for this exam and student")
	ErrStorageFault        = errors.New("storage fault")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNotExamOwner        = errors.New("exam does not belong to this teacher")
	ErrNotClassOwner       = errors.New("class does not belong to this teacher")
	ErrExamPublished       = errors.New("exam is published")
	ErrSubmissionClosed    = errors.New("submission window has closed")
	ErrInvalidScore        = errors.New("score out of range")
	ErrUnresolvedQuestions = errors.New("exam references questions missing from the catalog")
	ErrInvalidSections     = errors.New("invalid exam sections")
)

// IsAuthorizationDenied reports whether err carries an authorization denial.
func IsAuthorizationDenied(err error) bool {
	var d *AuthorizationDenied
	return errors.As(err, &d)
}
