// Package session implements a single student's attempt as an owned state
// machine. All timers run under one cancellable context that is torn down on
// every transition out of Active.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// State is the lifecycle state of an attempt.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateFailed     State = "failed"
	StateAbandoned  State = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateFailed || s == StateAbandoned
}

var (
	ErrNotActive        = errors.New("attempt is not active")
	ErrAlreadyStarted   = errors.New("attempt already started")
	ErrUnknownQuestion  = errors.New("question is not part of this exam")
	ErrCursorOutOfRange = errors.New("cursor out of range")
)

// Submitter accepts a finished attempt. It is the SubmissionStore boundary.
type Submitter interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error)
}

// DraftSaver receives periodic copies of the buffered answers. Saves are
// advisory: a failure is logged and never affects the attempt. SaveDraft
// reports false when the attempt was already submitted elsewhere.
type DraftSaver interface {
	SaveDraft(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSet) (bool, error)
}

// Observer is notified of changes the UI has to surface. Callbacks run
// outside the session lock and may call back into the session.
type Observer interface {
	OnTick(remaining int)
	OnWarning(r Reaction)
	OnStateChange(from, to State)
	OnReleaseFullscreen()
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnTick(int)                 {}
func (NopObserver) OnWarning(Reaction)         {}
func (NopObserver) OnStateChange(State, State) {}
func (NopObserver) OnReleaseFullscreen()       {}

// Cursor addresses a question by section and position within it.
type Cursor struct {
	Section  int `json:"section"`
	Question int `json:"question"`
}

// Session is one attempt. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	view      *model.ExamView
	studentID int
	attemptID uuid.UUID
	kinds     map[uuid.UUID]model.QuestionType

	submitter Submitter
	drafts    DraftSaver
	observer  Observer
	log       zerolog.Logger
	now       func() time.Time

	tickInterval     time.Duration
	autosaveInterval time.Duration

	state     State
	remaining int
	cursor    Cursor
	answers   model.AnswerSet
	integrity model.IntegritySummary
	result    *model.SubmitResult

	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithObserver sets the UI observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithDraftSaver enables the periodic advisory autosave.
func WithDraftSaver(d DraftSaver, interval time.Duration) Option {
	return func(s *Session) {
		s.drafts = d
		s.autosaveInterval = interval
	}
}

// WithTickInterval overrides the countdown period. Zero disables the
// internal countdown; callers then drive it through Tick.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithAttemptID fixes the idempotency key instead of minting one.
func WithAttemptID(id uuid.UUID) Option {
	return func(s *Session) { s.attemptID = id }
}

// New creates an Idle attempt over an authorized exam view.
func New(view *model.ExamView, studentID int, submitter Submitter, opts ...Option) *Session {
	s := &Session{
		view:         view,
		studentID:    studentID,
		attemptID:    uuid.New(),
		kinds:        make(map[uuid.UUID]model.QuestionType, view.QuestionCount()),
		submitter:    submitter,
		observer:     NopObserver{},
		log:          zerolog.Nop(),
		now:          time.Now,
		tickInterval: time.Second,
		state:        StateIdle,
		answers:      make(model.AnswerSet),
	}
	for _, sec := range view.Sections {
		for _, q := range sec.Questions {
			s.kinds[q.ID] = q.Type
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().
		Str("component", "attempt_session").
		Str("exam_id", view.ExamID.String()).
		Int("student_id", studentID).
		Str("attempt_id", s.attemptID.String()).
		Logger()
	return s
}

// Start moves Idle to Active, sets the countdown to the exam duration and
// starts the timers. ctx bounds the whole attempt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.baseCtx = ctx
	s.remaining = s.view.DurationMinutes * 60
	s.state = StateActive
	s.startTimersLocked()
	s.mu.Unlock()

	s.log.Info().Int("remaining", s.remaining).Msg("Attempt started")
	s.observer.OnStateChange(StateIdle, StateActive)
	return nil
}

// startTimersLocked launches the countdown and autosave loops under a fresh
// child context. Caller holds mu.
func (s *Session) startTimersLocked() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel

	if s.tickInterval > 0 {
		go s.runTicker(ctx, s.tickInterval)
	}
	if s.drafts != nil && s.autosaveInterval > 0 {
		go s.runAutosave(ctx, s.autosaveInterval)
	}
}

// stopTimersLocked cancels the timer context. Caller holds mu.
func (s *Session) stopTimersLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) runTicker(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}

func (s *Session) runAutosave(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.saveDraft(ctx)
		}
	}
}

func (s *Session) saveDraft(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive || len(s.answers) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := s.answers.Clone()
	s.mu.Unlock()

	saved, err := s.drafts.SaveDraft(ctx, s.view.ExamID, s.studentID, snapshot)
	switch {
	case err != nil && ctx.Err() == nil:
		s.log.Warn().Err(err).Msg("Autosave failed")
	case err == nil && !saved:
		s.log.Debug().Msg("Autosave skipped, attempt already submitted")
	}
}

// Tick advances the countdown by one second. When it reaches zero the
// attempt is submitted automatically.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	remaining := s.remaining
	ctx := s.baseCtx
	s.mu.Unlock()

	s.observer.OnTick(remaining)
	if remaining == 0 {
		s.log.Info().Msg("Time is up, submitting")
		if err := s.Submit(ctx); err != nil && !errors.Is(err, ErrNotActive) {
			s.log.Error().Err(err).Msg("Automatic submit failed")
		}
	}
}

// Answer buffers the answer for questionID, replacing any previous one.
func (s *Session) Answer(questionID uuid.UUID, a model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrNotActive
	}
	kind, ok := s.kinds[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if a.Kind != kind {
		return &model.ValidationError{
			QuestionID: questionID,
			Reason:     fmt.Sprintf("answer kind %s does not match question type %s", a.Kind, kind),
		}
	}
	if a.Choices != nil {
		a.Choices = append([]string(nil), a.Choices...)
	}
	s.answers[questionID] = a
	return nil
}

// Navigate moves the cursor. Buffered answers are untouched.
func (s *Session) Navigate(section, question int) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.cursor, ErrNotActive
	}
	if section < 0 || section >= len(s.view.Sections) ||
		question < 0 || question >= len(s.view.Sections[section].Questions) {
		return s.cursor, ErrCursorOutOfRange
	}
	s.cursor = Cursor{Section: section, Question: question}
	return s.cursor, nil
}

// Next moves to the following question, crossing into the next section at
// the end of the current one. At the last question it stays put.
func (s *Session) Next() (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.cursor, ErrNotActive
	}
	c := s.cursor
	switch {
	case c.Question < len(s.view.Sections[c.Section].Questions)-1:
		c.Question++
	case c.Section < len(s.view.Sections)-1:
		c.Section++
		c.Question = 0
	}
	s.cursor = c
	return c, nil
}

// Prev moves to the preceding question, landing on the last question of the
// previous section when crossing a boundary.
func (s *Session) Prev() (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.cursor, ErrNotActive
	}
	c := s.cursor
	switch {
	case c.Question > 0:
		c.Question--
	case c.Section > 0:
		c.Section--
		c.Question = max(len(s.view.Sections[c.Section].Questions)-1, 0)
	}
	s.cursor = c
	return c, nil
}

// Submit sends the buffered attempt to the store. Only one submit runs at a
// time; calls while not Active return ErrNotActive.
//
// Outcomes: accepted or duplicate → Submitted; authorization denial → Failed;
// storage fault → one retry with the same attempt id, then back to Active;
// any other error → back to Active with answers intact.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.state = StateSubmitting
	s.stopTimersLocked()
	req := model.SubmitRequest{
		AttemptID: s.attemptID,
		ExamID:    s.view.ExamID,
		StudentID: s.studentID,
		Answers:   s.answers.Clone(),
		Integrity: s.integritySnapshotLocked(),
	}
	s.mu.Unlock()
	s.observer.OnStateChange(StateActive, StateSubmitting)

	res, err := s.submitter.Submit(ctx, req)
	if err != nil && errors.Is(err, model.ErrStorageFault) {
		s.log.Warn().Err(err).Msg("Submit hit a storage fault, retrying once")
		res, err = s.submitter.Submit(ctx, req)
	}

	s.mu.Lock()
	if s.state == StateAbandoned {
		s.mu.Unlock()
		if errors.Is(err, model.ErrDuplicateSubmission) {
			return nil
		}
		return err
	}
	var next State
	switch {
	case err == nil:
		next = StateSubmitted
		s.result = res
	case errors.Is(err, model.ErrDuplicateSubmission):
		next = StateSubmitted
		err = nil
	case model.IsAuthorizationDenied(err):
		next = StateFailed
	default:
		next = StateActive
	}
	s.state = next
	if next == StateActive && s.remaining > 0 && s.baseCtx.Err() == nil {
		s.startTimersLocked()
	}
	s.mu.Unlock()

	switch next {
	case StateSubmitted:
		s.log.Info().Int("answers", len(req.Answers)).Msg("Attempt submitted")
	case StateFailed:
		s.log.Warn().Err(err).Msg("Attempt terminated by authorization denial")
	default:
		s.log.Error().Err(err).Msg("Submit failed, attempt resumable")
	}
	s.observer.OnStateChange(StateSubmitting, next)
	if next.Terminal() {
		s.observer.OnReleaseFullscreen()
	}
	return err
}

// Close tears the attempt down. A non-terminal attempt becomes Abandoned and
// its buffers are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTimersLocked()
	prev := s.state
	if prev.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateAbandoned
	s.answers = make(model.AnswerSet)
	s.integrity = model.IntegritySummary{}
	s.mu.Unlock()

	s.log.Info().Str("from", string(prev)).Msg("Attempt abandoned")
	s.observer.OnStateChange(prev, StateAbandoned)
	s.observer.OnReleaseFullscreen()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Cursor returns the current position.
func (s *Session) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Answers returns a copy of the buffered answers.
func (s *Session) Answers() model.AnswerSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Integrity returns a copy of the captured integrity summary.
func (s *Session) Integrity() model.IntegritySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integritySnapshotLocked()
}

// Result returns the accepted submission, or nil.
func (s *Session) Result() *model.SubmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// AttemptID returns the idempotency key sent with the submission.
func (s *Session) AttemptID() uuid.UUID {
	return s.attemptID
}

// View returns the exam view the attempt runs over.
func (s *Session) View() *model.ExamView {
	return s.view
}

func (s *Session) integritySnapshotLocked() model.IntegritySummary {
	out := s.integrity
	out.SuspiciousActivities = append([]model.IntegrityEvent(nil), s.integrity.SuspiciousActivities...)
	return out
}
