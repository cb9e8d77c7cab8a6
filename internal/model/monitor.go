package model

import "time"

// MonitorEventType enumerates live monitor messages.
type MonitorEventType string

const (
	MonitorAttemptStarted MonitorEventType = "attempt_started"
	MonitorIntegrity      MonitorEventType = "integrity_event"
	MonitorSubmitted      MonitorEventType = "submitted"
)

// MonitorEvent is published on an exam's monitor channel and forwarded
// verbatim to teachers watching the exam.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	ExamID    string           `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Data      any              `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
