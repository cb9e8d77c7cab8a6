package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Answer is a tagged value: Kind says which question type it answers and
// fixes the shape of the payload. SINGLE_CHOICE, FREE_TEXT and FREE_CODE
// carry Text; MULTI_CHOICE carries Choices.
type Answer struct {
	Kind    QuestionType
	Text    string
	Choices []string
}

// TextAnswer builds a single-value answer of the given kind.
func TextAnswer(kind QuestionType, value string) Answer {
	return Answer{Kind: kind, Text: value}
}

// ChoicesAnswer builds a MULTI_CHOICE answer.
func ChoicesAnswer(values ...string) Answer {
	return Answer{Kind: QuestionTypeMultiChoice, Choices: append([]string(nil), values...)}
}

type answerWire struct {
	Kind  QuestionType    `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the answer as {"kind": ..., "value": ...}.
func (a Answer) MarshalJSON() ([]byte, error) {
	var value any = a.Text
	if a.Kind == QuestionTypeMultiChoice {
		choices := a.Choices
		if choices == nil {
			choices = []string{}
		}
		value = choices
	}
	return json.Marshal(struct {
		Kind  QuestionType `json:"kind"`
		Value any          `json:"value"`
	}{a.Kind, value})
}

// UnmarshalJSON decodes {"kind": ..., "value": ...} and rejects payloads
// whose value shape does not fit the kind.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var w answerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("unknown answer kind %q", w.Kind)
	}

	out := Answer{Kind: w.Kind}
	if w.Kind == QuestionTypeMultiChoice {
		if err := json.Unmarshal(w.Value, &out.Choices); err != nil {
			return fmt.Errorf("answer kind %s expects a list of strings", w.Kind)
		}
		if out.Choices == nil {
			out.Choices = []string{}
		}
	} else {
		if err := json.Unmarshal(w.Value, &out.Text); err != nil {
			return fmt.Errorf("answer kind %s expects a string", w.Kind)
		}
	}
	*a = out
	return nil
}

// Validate checks that the answer fits q: same kind, and for choice
// questions every selected value is one of the options.
func (a Answer) Validate(q *Question) error {
	if a.Kind != q.Type {
		return &ValidationError{
			QuestionID: q.ID,
			Reason:     fmt.Sprintf("answer kind %s does not match question type %s", a.Kind, q.Type),
		}
	}
	switch q.Type {
	case QuestionTypeSingleChoice:
		if len(q.Options) > 0 && !contains(q.Options, a.Text) {
			return &ValidationError{QuestionID: q.ID, Reason: "selected option does not exist"}
		}
	case QuestionTypeMultiChoice:
		for _, c := range a.Choices {
			if len(q.Options) > 0 && !contains(q.Options, c) {
				return &ValidationError{QuestionID: q.ID, Reason: fmt.Sprintf("selected option %q does not exist", c)}
			}
		}
	}
	return nil
}

// IsBlank reports whether the answer carries no content.
func (a Answer) IsBlank() bool {
	if a.Kind == QuestionTypeMultiChoice {
		return len(a.Choices) == 0
	}
	return strings.TrimSpace(a.Text) == ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// AnswerSet maps question ids to answers. Keys are serialized as uuid strings.
type AnswerSet map[uuid.UUID]Answer

// Clone returns an independent copy.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for k, v := range s {
		if v.Choices != nil {
			v.Choices = append([]string(nil), v.Choices...)
		}
		out[k] = v
	}
	return out
}

// DecodeAnswerSet decodes every entry on its own. Entries with a key that is
// not a question id, or a payload that does not fit its kind, come back as
// rejections and the remaining answers are kept.
func DecodeAnswerSet(raw map[string]json.RawMessage) (AnswerSet, []AnswerRejection) {
	out := make(AnswerSet, len(raw))
	var rejected []AnswerRejection
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		qid, err := uuid.Parse(key)
		if err != nil {
			rejected = append(rejected, AnswerRejection{Reason: fmt.Sprintf("invalid question id %q", key)})
			continue
		}
		var a Answer
		if err := json.Unmarshal(raw[key], &a); err != nil {
			rejected = append(rejected, AnswerRejection{QuestionID: qid, Reason: err.Error()})
			continue
		}
		out[qid] = a
	}
	return out, rejected
}
