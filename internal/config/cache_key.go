package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for a published exam definition.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// AttemptStartKey returns the cache key holding the unix time of a student's
// first successful authorization for an exam.
func (r *CacheKeyStruct) AttemptStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:attempt_start", studentID, examID)
}

// DraftAnswersKey returns the hash key buffering a student's autosaved answers.
func (r *CacheKeyStruct) DraftAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:draft", studentID, examID)
}

// DraftClosedKey marks an attempt whose draft was cleared on submission.
// Autosaves arriving after it are dropped.
func (r *CacheKeyStruct) DraftClosedKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:draft_closed", studentID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
