package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]model.Exam
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeExamStore) ListPublished(_ context.Context) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) ListPublishedForClasses(_ context.Context, classIDs []int) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsPublished && slices.Contains(classIDs, e.ClassID) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b model.Exam) int { return strings.Compare(a.Title, b.Title) })
	return out, nil
}

func (f *fakeExamStore) ListByTeacher(_ context.Context, teacherID int) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.TeacherID == teacherID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	f.exams[e.ID] = *e
	return nil
}

func (f *fakeExamStore) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.exams[id]
	e.IsPublished = published
	f.exams[id] = e
	return nil
}

func (f *fakeExamStore) SetSchedule(_ context.Context, id uuid.UUID, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.exams[id]
	e.ScheduledAt = at
	f.exams[id] = e
	return nil
}

func (f *fakeExamStore) ReplaceSections(_ context.Context, id uuid.UUID, sections []model.Section) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok || e.IsPublished {
		return false, nil
	}
	e.Sections = sections
	f.exams[id] = e
	return true, nil
}

type fakeExamCache struct {
	mu sync.Mutex
	m  map[uuid.UUID]model.Exam
}

func newFakeExamCache() *fakeExamCache {
	return &fakeExamCache{m: make(map[uuid.UUID]model.Exam)}
}

func (f *fakeExamCache) Get(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeExamCache) Set(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[e.ID] = *e
	return nil
}

func (f *fakeExamCache) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, id)
	return nil
}

func (f *fakeExamCache) has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[id]
	return ok
}

type fakeCatalog struct {
	mu        sync.Mutex
	questions map[uuid.UUID]model.Question
	calls     int
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []model.Question
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeClasses struct {
	owners map[int]int
}

func (f *fakeClasses) GetByID(_ context.Context, id int) (*model.Class, error) {
	teacherID, ok := f.owners[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &model.Class{ID: id, Name: "Kelas", TeacherID: teacherID}, nil
}

type fakeEnrollments struct {
	approved map[[2]int]bool
}

func (f *fakeEnrollments) IsApproved(_ context.Context, classID, studentID int) (bool, error) {
	return f.approved[[2]int{classID, studentID}], nil
}

func (f *fakeEnrollments) ApprovedClassIDs(_ context.Context, studentID int) ([]int, error) {
	var out []int
	for key, ok := range f.approved {
		if ok && key[1] == studentID {
			out = append(out, key[0])
		}
	}
	slices.Sort(out)
	return out, nil
}

type submissionKey struct {
	examID    uuid.UUID
	studentID int
}

// fakeSubmissionStore enforces (exam, student) uniqueness under a lock, the
// way the database constraint does.
type fakeSubmissionStore struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*model.Submission
	keys      map[submissionKey]uuid.UUID
	titles    map[uuid.UUID]string
	insertErr []error
	inserts   int
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{
		rows:   make(map[uuid.UUID]*model.Submission),
		keys:   make(map[submissionKey]uuid.UUID),
		titles: make(map[uuid.UUID]string),
	}
}

func (f *fakeSubmissionStore) Insert(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if len(f.insertErr) > 0 {
		err := f.insertErr[0]
		f.insertErr = f.insertErr[1:]
		if err != nil {
			return err
		}
	}
	key := submissionKey{s.ExamID, s.StudentID}
	if _, dup := f.keys[key]; dup {
		return model.ErrDuplicateSubmission
	}
	s.ID = uuid.New()
	stored := *s
	f.rows[s.ID] = &stored
	f.keys[key] = s.ID
	return nil
}

func (f *fakeSubmissionStore) Exists(_ context.Context, examID uuid.UUID, studentID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[submissionKey{examID, studentID}]
	return ok, nil
}

func (f *fakeSubmissionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *s
	return &out, nil
}

func (f *fakeSubmissionStore) ListByStudent(_ context.Context, studentID int) ([]repository.StudentSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.StudentSubmission
	for _, s := range f.rows {
		if s.StudentID == studentID {
			out = append(out, repository.StudentSubmission{Submission: *s, ExamTitle: f.titles[s.ExamID]})
		}
	}
	return out, nil
}

func (f *fakeSubmissionStore) ListByExam(_ context.Context, examID uuid.UUID, _, _ int) ([]model.SubmissionSummary, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SubmissionSummary
	for _, s := range f.rows {
		if s.ExamID == examID {
			out = append(out, model.SubmissionSummary{SubmissionID: s.ID, StudentID: s.StudentID, Score: s.Score})
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSubmissionStore) Analytics(_ context.Context, examID uuid.UUID) (*model.ExamAnalytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &model.ExamAnalytics{ExamID: examID}
	for _, s := range f.rows {
		if s.ExamID == examID {
			a.TotalSubmissions++
		}
	}
	return a, nil
}

func (f *fakeSubmissionStore) UpdateOverride(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; !ok {
		return model.ErrSubmissionNotFound
	}
	now := time.Now()
	s.GradedAt = &now
	stored := *s
	f.rows[s.ID] = &stored
	return nil
}

func (f *fakeSubmissionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeAttempts struct {
	mu      sync.Mutex
	starts  map[submissionKey]time.Time
	cleared []submissionKey
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{starts: make(map[submissionKey]time.Time)}
}

func (f *fakeAttempts) MarkStart(_ context.Context, examID uuid.UUID, studentID int, at time.Time) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := submissionKey{examID, studentID}
	if prev, ok := f.starts[key]; ok {
		return prev, false, nil
	}
	f.starts[key] = at
	return at, true, nil
}

func (f *fakeAttempts) StartedAt(_ context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.starts[submissionKey{examID, studentID}]
	return at, ok, nil
}

func (f *fakeAttempts) ClearDraft(_ context.Context, examID uuid.UUID, studentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, submissionKey{examID, studentID})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev model.MonitorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []model.MonitorEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.MonitorEventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

const (
	testClassID   = 7
	testTeacherID = 11
	testStudentID = 42
)

// fixture wires every service to in-memory fakes around one published exam
// with two sections: "Aljabar" (two single-choice questions) and "Esai"
// (one free-text question).
type fixture struct {
	examStore   *fakeExamStore
	classes     *fakeClasses
	cache       *fakeExamCache
	catalog     *fakeCatalog
	enrollments *fakeEnrollments
	submissions *fakeSubmissionStore
	attempts    *fakeAttempts
	publisher   *fakePublisher

	examSvc    *ExamService
	authorizer *Authorizer
	submitSvc  *SubmissionService
	resultSvc  *ResultService

	exam model.Exam
	q1   model.Question
	q2   model.Question
	q3   model.Question
}

func newFixture() *fixture {
	q1 := model.Question{ID: uuid.New(), Type: model.QuestionTypeSingleChoice, Options: []string{"A", "B", "C"}, CorrectAnswers: []string{"A"}, Points: 1}
	q2 := model.Question{ID: uuid.New(), Type: model.QuestionTypeSingleChoice, Options: []string{"A", "B", "C"}, CorrectAnswers: []string{"B"}, Points: 2}
	q3 := model.Question{ID: uuid.New(), Type: model.QuestionTypeFreeText, CorrectAnswers: []string{"Jakarta"}, Points: 3}

	exam := model.Exam{
		ID:              uuid.New(),
		Title:           "Ujian Tengah Semester",
		ClassID:         testClassID,
		TeacherID:       testTeacherID,
		DurationMinutes: 60,
		PassPercentage:  60,
		Sections: []model.Section{
			{Name: "Aljabar", QuestionIDs: []uuid.UUID{q1.ID, q2.ID}},
			{Name: "Esai", QuestionIDs: []uuid.UUID{q3.ID}},
		},
		AntiCheat:   model.DefaultAntiCheatPolicy(),
		IsPublished: true,
	}

	f := &fixture{
		examStore:   &fakeExamStore{exams: map[uuid.UUID]model.Exam{exam.ID: exam}},
		classes:     &fakeClasses{owners: map[int]int{testClassID: testTeacherID}},
		cache:       newFakeExamCache(),
		catalog:     &fakeCatalog{questions: map[uuid.UUID]model.Question{q1.ID: q1, q2.ID: q2, q3.ID: q3}},
		enrollments: &fakeEnrollments{approved: map[[2]int]bool{{testClassID, testStudentID}: true}},
		submissions: newFakeSubmissionStore(),
		attempts:    newFakeAttempts(),
		publisher:   &fakePublisher{},
		exam:        exam,
		q1:          q1,
		q2:          q2,
		q3:          q3,
	}
	f.submissions.titles[exam.ID] = exam.Title

	log := zerolog.Nop()
	engine := grading.New(false)
	f.examSvc = NewExamService(f.examStore, f.classes, f.cache, f.catalog, log)
	f.authorizer = NewAuthorizer(f.examSvc, f.catalog, f.enrollments, f.submissions, f.attempts, f.publisher, log)
	f.submitSvc = NewSubmissionService(f.examSvc, f.catalog, f.enrollments, f.submissions, f.attempts, f.publisher, engine, CutoffPolicy{}, log)
	f.resultSvc = NewResultService(f.examSvc, f.catalog, f.submissions, engine, log)
	return f
}

// updateExam edits the stored exam and drops any cached copy.
func (f *fixture) updateExam(edit func(e *model.Exam)) {
	f.examStore.mu.Lock()
	e := f.examStore.exams[f.exam.ID]
	edit(&e)
	f.examStore.exams[f.exam.ID] = e
	f.examStore.mu.Unlock()
	_ = f.cache.Delete(context.Background(), f.exam.ID)
	f.exam = e
}

func (f *fixture) submitRequest(answers model.AnswerSet) model.SubmitRequest {
	return model.SubmitRequest{
		AttemptID: uuid.New(),
		ExamID:    f.exam.ID,
		StudentID: testStudentID,
		Answers:   answers,
	}
}
