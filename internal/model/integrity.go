package model

import "time"

// IntegrityEventKind enumerates the anti-cheat signals an attempt can capture.
type IntegrityEventKind string

const (
	EventTabSwitch      IntegrityEventKind = "tab_switch"
	EventFullscreenExit IntegrityEventKind = "fullscreen_exit"
	EventCopyPaste      IntegrityEventKind = "copy_paste"
	EventRightClick     IntegrityEventKind = "right_click"
)

// Valid reports whether k is a known event kind.
func (k IntegrityEventKind) Valid() bool {
	switch k {
	case EventTabSwitch, EventFullscreenExit, EventCopyPaste, EventRightClick:
		return true
	}
	return false
}

// Enabled reports whether the policy captures events of kind k.
func (p AntiCheatPolicy) Enabled(k IntegrityEventKind) bool {
	switch k {
	case EventTabSwitch:
		return p.MonitorTabs
	case EventFullscreenExit:
		return p.RequireFullscreen
	case EventCopyPaste:
		return p.PreventCopyPaste
	case EventRightClick:
		return p.PreventRightClick
	}
	return false
}

// IntegrityEvent is a single captured anti-cheat signal.
type IntegrityEvent struct {
	Kind      IntegrityEventKind `json:"type" binding:"required"`
	Timestamp time.Time          `json:"timestamp"`
	Detail    string             `json:"details,omitempty" binding:"max=500"`
}

// IntegritySummary travels with a submission. IsSuspicious is computed
// server-side once at submission time.
type IntegritySummary struct {
	TabSwitches          int              `json:"tab_switches" binding:"min=0"`
	FullscreenExits      int              `json:"fullscreen_exits" binding:"min=0"`
	SuspiciousActivities []IntegrityEvent `json:"suspicious_activities"`
	IsSuspicious         bool             `json:"is_suspicious"`
}

// IntegrityEventRecord is a persisted event, enqueued for bulk insert.
type IntegrityEventRecord struct {
	ExamID    string             `json:"exam_id"`
	StudentID int                `json:"student_id"`
	AttemptID string             `json:"attempt_id"`
	Kind      IntegrityEventKind `json:"type"`
	Detail    string             `json:"details,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
