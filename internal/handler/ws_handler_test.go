package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/service"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

type nopDrafts struct{}

func (nopDrafts) SaveDraft(context.Context, uuid.UUID, int, model.AnswerSet) (bool, error) {
	return true, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []model.IntegrityEvent
}

func (r *recordedEvents) RecordIntegrityEvent(_ context.Context, _ uuid.UUID, _ int, _ uuid.UUID, ev model.IntegrityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type lockedSubmitter struct {
	mu sync.Mutex
	stubSubmitter
}

func (s *lockedSubmitter) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stubSubmitter.Submit(ctx, req)
}

func (s *lockedSubmitter) request() (model.SubmitRequest, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got, s.calls
}

func attemptServer(t *testing.T, auth ExamAuthorizer, sub Submitter, rec IntegrityRecorder) string {
	t.Helper()
	h := NewWSHandler(auth, sub, nopDrafts{}, rec, 0, zerolog.Nop(), nil)
	r := gin.New()
	r.Use(withClaims(service.TokenTypeStudent, studentID))
	r.GET("/exams/:exam_id/attempt", h.AttemptStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type frame struct {
	Event      ws.Event        `json:"event"`
	Code       string          `json:"code"`
	To         string          `json:"to"`
	QuestionID uuid.UUID       `json:"question_id"`
	Section    int             `json:"section"`
	Question   int             `json:"question"`
	Block      bool            `json:"block"`
	Result     json.RawMessage `json:"result"`
}

// readUntil reads frames until one with the wanted event arrives. Ticks and
// state frames in between are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, want ws.Event) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if f.Event == want {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAttemptStreamDeniedBeforeUpgrade(t *testing.T) {
	url := attemptServer(t, &stubAuthorizer{err: model.ErrInvalidAccessCode}, &stubSubmitter{}, &recordedEvents{})

	_, resp, err := websocket.DefaultDialer.Dial(url+"/exams/"+uuid.NewString()+"/attempt?access_code=x", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v", resp)
	}
}

func TestAttemptStreamLifecycle(t *testing.T) {
	examID := uuid.New()
	q1, q2 := uuid.New(), uuid.New()
	view := &model.ExamView{
		ExamID:          examID,
		Title:           "UTS",
		DurationMinutes: 30,
		AntiCheat:       model.DefaultAntiCheatPolicy(),
		Sections: []model.SectionView{
			{Name: "A", Questions: []model.QuestionForStudent{
				{ID: q1, Type: model.QuestionTypeSingleChoice, Options: []string{"A", "B"}},
				{ID: q2, Type: model.QuestionTypeFreeText},
			}},
		},
	}
	auth := &stubAuthorizer{view: view}
	sub := &lockedSubmitter{}
	rec := &recordedEvents{}
	url := attemptServer(t, auth, sub, rec)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/exams/"+examID.String()+"/attempt?access_code=abc", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, ws.EventView)

	// Answer, then replace it.
	send(t, conn, map[string]any{"action": "answer", "question_id": q1, "answer": map[string]any{"kind": "SINGLE_CHOICE", "value": "A"}})
	if f := readUntil(t, conn, ws.EventAnswered); f.QuestionID != q1 {
		t.Errorf("answered %s, want %s", f.QuestionID, q1)
	}
	send(t, conn, map[string]any{"action": "answer", "question_id": q1, "answer": map[string]any{"kind": "SINGLE_CHOICE", "value": "B"}})
	readUntil(t, conn, ws.EventAnswered)

	// Wrong kind is rejected.
	send(t, conn, map[string]any{"action": "answer", "question_id": q2, "answer": map[string]any{"kind": "MULTI_CHOICE", "value": []string{"x"}}})
	if f := readUntil(t, conn, ws.EventError); f.Code != "INVALID_ANSWER" {
		t.Errorf("code = %q, want INVALID_ANSWER", f.Code)
	}

	// Missing question id fails validation.
	send(t, conn, map[string]any{"action": "answer", "answer": map[string]any{"kind": "FREE_TEXT", "value": "x"}})
	if f := readUntil(t, conn, ws.EventError); f.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", f.Code)
	}

	send(t, conn, map[string]any{"action": "next"})
	if f := readUntil(t, conn, ws.EventCursor); f.Section != 0 || f.Question != 1 {
		t.Errorf("cursor = %d/%d, want 0/1", f.Section, f.Question)
	}
	send(t, conn, map[string]any{"action": "navigate", "section": 3, "question": 0})
	if f := readUntil(t, conn, ws.EventError); f.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", f.Code)
	}

	send(t, conn, map[string]any{"action": "event", "type": "copy_paste"})
	if f := readUntil(t, conn, ws.EventWarning); !f.Block {
		t.Error("copy_paste warning should block")
	}

	send(t, conn, map[string]any{"action": "ping"})
	readUntil(t, conn, ws.EventPong)

	send(t, conn, map[string]any{"action": "submit"})
	if f := readUntil(t, conn, ws.EventSubmitted); len(f.Result) == 0 || string(f.Result) == "null" {
		t.Errorf("submitted without result: %s", f.Result)
	}

	got, calls := sub.request()
	if calls != 1 {
		t.Fatalf("submit calls = %d, want 1", calls)
	}
	if got.ExamID != examID || got.StudentID != studentID {
		t.Errorf("request = %+v", got)
	}
	if len(got.Answers) != 1 || got.Answers[q1].Text != "B" {
		t.Errorf("answers = %+v, want only q1=B", got.Answers)
	}
	if len(got.Integrity.SuspiciousActivities) != 1 {
		t.Errorf("integrity = %+v, want one activity", got.Integrity)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d integrity events, want 1", rec.count())
	}

	// The server closes the socket once the attempt is over.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
