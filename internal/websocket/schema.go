package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionNext     Action = "next"
	ActionPrev     Action = "prev"
	ActionEvent    Action = "event"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records or replaces the answer to one question.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// NavigateRequest jumps to a position in the exam.
type NavigateRequest struct {
	Action   Action `json:"action"`
	Section  int    `json:"section" binding:"min=0"`
	Question int    `json:"question" binding:"min=0"`
}

// EventRequest reports an integrity event captured by the client.
type EventRequest struct {
	Action  Action                   `json:"action"`
	Type    model.IntegrityEventKind `json:"type" binding:"required,oneof=tab_switch fullscreen_exit copy_paste right_click"`
	Details string                   `json:"details" binding:"max=500"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventView      Event = "view"
	EventTick      Event = "tick"
	EventWarning   Event = "warning"
	EventState     Event = "state"
	EventCursor    Event = "cursor"
	EventAnswered  Event = "answered"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// ViewResponse opens the attempt.
type ViewResponse struct {
	Event            Event           `json:"event"`
	AttemptID        uuid.UUID       `json:"attempt_id"`
	RemainingSeconds int             `json:"remaining_seconds"`
	View             *model.ExamView `json:"view"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// WarningResponse asks the client to show a transient warning.
type WarningResponse struct {
	Event             Event                    `json:"event"`
	Type              model.IntegrityEventKind `json:"type"`
	Message           string                   `json:"message"`
	Block             bool                     `json:"block"`
	ReenterFullscreen bool                     `json:"reenter_fullscreen"`
	TTLMillis         int64                    `json:"ttl_ms"`
}

type StateResponse struct {
	Event Event  `json:"event"`
	From  string `json:"from"`
	To    string `json:"to"`
	// ReleaseFullscreen is set once the attempt is over.
	ReleaseFullscreen bool `json:"release_fullscreen,omitempty"`
}

type CursorResponse struct {
	Event    Event `json:"event"`
	Section  int   `json:"section"`
	Question int   `json:"question"`
}

type AnsweredResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

type SubmittedResponse struct {
	Event  Event               `json:"event"`
	Result *model.SubmitResult `json:"result,omitempty"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
