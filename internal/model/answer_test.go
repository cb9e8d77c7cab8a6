package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestSubmitRequestDecodesAnswersIndividually(t *testing.T) {
	attemptID := uuid.New()
	single, multi, text, wrongShape, unknownKind := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	body := `{
		"attempt_id": "` + attemptID.String() + `",
		"answers": {
			"` + single.String() + `":      {"kind": "SINGLE_CHOICE", "value": "A"},
			"` + multi.String() + `":       {"kind": "MULTI_CHOICE", "value": ["B", "A"]},
			"` + text.String() + `":        {"kind": "FREE_TEXT", "value": "Jakarta"},
			"` + wrongShape.String() + `":  {"kind": "SINGLE_CHOICE", "value": ["A"]},
			"` + unknownKind.String() + `": {"kind": "ESSAY", "value": "x"},
			"not-a-uuid":                   {"kind": "FREE_TEXT", "value": "x"}
		},
		"integrity": {"tab_switches": 2}
	}`

	var req SubmitRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if req.AttemptID != attemptID || req.Integrity.TabSwitches != 2 {
		t.Errorf("attempt %s, tab switches %d", req.AttemptID, req.Integrity.TabSwitches)
	}
	if len(req.Answers) != 3 {
		t.Fatalf("answers = %+v, want 3", req.Answers)
	}
	if got := req.Answers[multi]; got.Kind != QuestionTypeMultiChoice || len(got.Choices) != 2 {
		t.Errorf("multi answer = %+v", got)
	}

	if len(req.Malformed) != 3 {
		t.Fatalf("malformed = %+v, want 3", req.Malformed)
	}
	seen := map[uuid.UUID]bool{}
	for _, r := range req.Malformed {
		if r.Reason == "" {
			t.Errorf("rejection without reason: %+v", r)
		}
		seen[r.QuestionID] = true
	}
	if !seen[wrongShape] || !seen[unknownKind] || !seen[uuid.Nil] {
		t.Errorf("malformed ids = %v", seen)
	}
}

func TestSubmitRequestWithoutAnswers(t *testing.T) {
	var req SubmitRequest
	if err := json.Unmarshal([]byte(`{"attempt_id":"`+uuid.NewString()+`","answers":null}`), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.Answers == nil || len(req.Answers) != 0 || req.Malformed != nil {
		t.Errorf("answers = %v, malformed = %v", req.Answers, req.Malformed)
	}
}

func TestSubmitRequestRejectsBadEnvelope(t *testing.T) {
	var req SubmitRequest
	if err := json.Unmarshal([]byte(`{"attempt_id":"nope"}`), &req); err == nil {
		t.Error("invalid attempt id should fail the request")
	}
}
