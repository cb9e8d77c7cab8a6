// Package grading scores answer sets against catalog questions. It holds no
// state and performs no I/O.
package grading

import (
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Engine grades answers. With WeightByPoints unset every question is worth
// one point; when set, score and max score use each question's points.
type Engine struct {
	WeightByPoints bool
}

// New returns an Engine.
func New(weightByPoints bool) *Engine {
	return &Engine{WeightByPoints: weightByPoints}
}

// Result is the outcome of grading one answer set.
type Result struct {
	PerQuestion map[uuid.UUID]bool
	Score       float64
	MaxScore    float64
}

// Grade scores answers against questions. Every question counts toward
// MaxScore whether or not it was answered.
func (e *Engine) Grade(questions []model.Question, answers model.AnswerSet) Result {
	res := Result{PerQuestion: make(map[uuid.UUID]bool, len(questions))}
	for i := range questions {
		q := &questions[i]
		w := e.weight(q)
		res.MaxScore += w

		ans, ok := answers[q.ID]
		correct := ok && IsCorrect(q, ans)
		res.PerQuestion[q.ID] = correct
		if correct {
			res.Score += w
		}
	}
	return res
}

// GradeRefs grades the questions referenced by ids, looking each up in
// catalog. Ids absent from the catalog are graded incorrect, still count one
// unit toward MaxScore, and are returned in missing.
func (e *Engine) GradeRefs(ids []uuid.UUID, catalog map[uuid.UUID]model.Question, answers model.AnswerSet) (Result, []uuid.UUID) {
	res := Result{PerQuestion: make(map[uuid.UUID]bool, len(ids))}
	var missing []uuid.UUID
	for _, id := range ids {
		q, ok := catalog[id]
		if !ok {
			missing = append(missing, id)
			res.PerQuestion[id] = false
			res.MaxScore++
			continue
		}
		w := e.weight(&q)
		res.MaxScore += w
		ans, answered := answers[id]
		correct := answered && IsCorrect(&q, ans)
		res.PerQuestion[id] = correct
		if correct {
			res.Score += w
		}
	}
	return res, missing
}

// Sections computes the per-section rollup for exam.
func (e *Engine) Sections(exam *model.Exam, catalog map[uuid.UUID]model.Question, answers model.AnswerSet) []model.SectionScore {
	out := make([]model.SectionScore, 0, len(exam.Sections))
	for _, s := range exam.Sections {
		r, _ := e.GradeRefs(s.QuestionIDs, catalog, answers)
		out = append(out, model.SectionScore{
			SectionName: s.Name,
			Score:       r.Score,
			MaxScore:    r.MaxScore,
			Percentage:  Percentage(r.Score, r.MaxScore),
		})
	}
	return out
}

func (e *Engine) weight(q *model.Question) float64 {
	if e.WeightByPoints {
		return float64(q.Weight())
	}
	return 1
}

// IsCorrect applies the per-type matching rule.
func IsCorrect(q *model.Question, a model.Answer) bool {
	if a.Kind != q.Type || len(q.CorrectAnswers) == 0 {
		return false
	}
	switch q.Type {
	case model.QuestionTypeSingleChoice:
		return a.Text == q.CorrectAnswers[0]
	case model.QuestionTypeMultiChoice:
		return equalSet(a.Choices, q.CorrectAnswers)
	case model.QuestionTypeFreeText, model.QuestionTypeFreeCode:
		return normalizeText(a.Text) == normalizeText(q.CorrectAnswers[0])
	}
	return false
}

func equalSet(a, b []string) bool {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Percentage returns score/max*100, or 0 when max is 0.
func Percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max * 100
}

// Passed reports whether percentage meets the pass threshold.
func Passed(percentage, threshold float64) bool {
	return percentage >= threshold
}
