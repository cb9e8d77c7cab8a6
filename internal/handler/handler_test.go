package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

const (
	studentID = 42
	teacherID = 11
)

// ─── Stubs ──────────────────────────────────────────────────────────

type stubAuthorizer struct {
	view  *model.ExamView
	exams []model.StudentExam
	err   error
	got  struct {
		examID     uuid.UUID
		studentID  int
		accessCode string
	}
}

func (s *stubAuthorizer) Authorize(_ context.Context, examID uuid.UUID, studentID int, accessCode string) (*model.ExamView, error) {
	s.got.examID, s.got.studentID, s.got.accessCode = examID, studentID, accessCode
	return s.view, s.err
}

func (s *stubAuthorizer) ListAvailable(_ context.Context, studentID int) ([]model.StudentExam, error) {
	s.got.studentID = studentID
	return s.exams, s.err
}

type stubSubmitter struct {
	result *model.SubmitResult
	err    error
	got    model.SubmitRequest
	calls  int
}

func (s *stubSubmitter) Submit(_ context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	s.calls++
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &model.SubmitResult{
		Submission: &model.Submission{ExamID: req.ExamID, StudentID: req.StudentID, AttemptID: req.AttemptID},
		Rejected:   req.Malformed,
	}, nil
}

type stubResults struct {
	results []model.StudentResult
	err     error
}

func (s *stubResults) ListForStudent(context.Context, int) ([]model.StudentResult, error) {
	return s.results, s.err
}

type stubExams struct {
	exam    *model.Exam
	err     error
	created *model.CreateExamRequest
}

func (s *stubExams) Create(_ context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Exam{ID: uuid.New(), Title: req.Title, ClassID: req.ClassID, TeacherID: teacherID}, nil
}

func (s *stubExams) ListByTeacher(context.Context, int) ([]model.Exam, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []model.Exam{*s.exam}, nil
}

func (s *stubExams) GetOwned(context.Context, uuid.UUID, int) (*model.Exam, error) { return s.exam, s.err }
func (s *stubExams) Publish(context.Context, uuid.UUID, int) error                 { return s.err }
func (s *stubExams) Unpublish(context.Context, uuid.UUID, int) error               { return s.err }
func (s *stubExams) Schedule(_ context.Context, _ uuid.UUID, _ int, at *time.Time) (*model.Exam, error) {
	if s.err != nil {
		return nil, s.err
	}
	e := *s.exam
	e.ScheduledAt = at
	return &e, nil
}
func (s *stubExams) ReplaceSections(_ context.Context, _ uuid.UUID, _ int, sections []model.Section) (*model.Exam, error) {
	if s.err != nil {
		return nil, s.err
	}
	e := *s.exam
	e.Sections = sections
	return &e, nil
}

type stubGrader struct {
	items   []model.SubmissionSummary
	total   int64
	err     error
	page    int
	perPage int
	score   float64
	detail  *model.SubmissionDetail
	teacher int
}

func (s *stubGrader) GetForTeacher(_ context.Context, id uuid.UUID, teacherID int) (*model.SubmissionDetail, error) {
	s.teacher = teacherID
	if s.err != nil {
		return nil, s.err
	}
	d := *s.detail
	d.Submission = &model.Submission{ID: id}
	return &d, nil
}

func (s *stubGrader) ListForExam(_ context.Context, _ uuid.UUID, _ int, page, perPage int) ([]model.SubmissionSummary, int64, error) {
	s.page, s.perPage = page, perPage
	return s.items, s.total, s.err
}

func (s *stubGrader) Analytics(_ context.Context, examID uuid.UUID, _ int) (*model.ExamAnalytics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.ExamAnalytics{ExamID: examID, TotalSubmissions: int(s.total)}, nil
}

func (s *stubGrader) GradeOverride(_ context.Context, id uuid.UUID, _ int, score float64, feedback *string) (*model.Submission, error) {
	s.score = score
	if s.err != nil {
		return nil, s.err
	}
	return &model.Submission{ID: id, Score: score, Feedback: feedback}, nil
}

// ─── Helpers ────────────────────────────────────────────────────────

func withClaims(tokenType service.TokenType, userID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: tokenType, UserID: userID})
		c.Next()
	}
}

type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Error      *response.ErrorBody  `json:"error"`
	Pagination *response.Pagination `json:"pagination"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, w.Body.String(), err)
	}
	return w, env
}

func errCode(env envelope) response.ErrCode {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func studentRouter(h *StudentPortalHandler) *gin.Engine {
	r := gin.New()
	r.Use(response.RequestIDMiddleware(), withClaims(service.TokenTypeStudent, studentID))
	r.POST("/exams/:exam_id/authorize", h.AuthorizeExam)
	r.POST("/exams/:exam_id/submit", h.SubmitExam)
	r.GET("/results", h.GetResults)
	r.GET("/exams", h.ListExams)
	return r
}

// ─── Student portal ─────────────────────────────────────────────────

func TestAuthorizeExam(t *testing.T) {
	examID := uuid.New()

	t.Run("returns the view", func(t *testing.T) {
		auth := &stubAuthorizer{view: &model.ExamView{ExamID: examID, Title: "UTS"}}
		r := studentRouter(NewStudentPortalHandler(auth, &stubSubmitter{}, &stubResults{}, zerolog.Nop()))

		w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/authorize", `{"access_code":"abc"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var data struct {
			Exam model.ExamView `json:"exam"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data.Exam.ExamID != examID || data.Exam.Title != "UTS" {
			t.Errorf("unexpected view %+v", data.Exam)
		}
		if auth.got.studentID != studentID || auth.got.accessCode != "abc" {
			t.Errorf("authorizer got %+v", auth.got)
		}
	})

	t.Run("body is optional", func(t *testing.T) {
		auth := &stubAuthorizer{view: &model.ExamView{ExamID: examID}}
		r := studentRouter(NewStudentPortalHandler(auth, &stubSubmitter{}, &stubResults{}, zerolog.Nop()))

		w, _ := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/authorize", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if auth.got.accessCode != "" {
			t.Errorf("access code = %q, want empty", auth.got.accessCode)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, &stubSubmitter{}, &stubResults{}, zerolog.Nop()))
		w, env := do(t, r, http.MethodPost, "/exams/nope/authorize", "")
		if w.Code != http.StatusBadRequest || errCode(env) != response.ErrInvalidID {
			t.Errorf("got %d %s", w.Code, errCode(env))
		}
	})

	denials := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{model.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
		{model.ErrInvalidAccessCode, http.StatusForbidden, response.ErrInvalidAccessCode},
		{model.ErrNotEnrolled, http.StatusForbidden, response.ErrNotEnrolled},
		{model.ErrNotYetAvailable, http.StatusForbidden, response.ErrNotYetAvailable},
		{model.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{fmt.Errorf("load catalog: %w", model.ErrStorageFault), http.StatusServiceUnavailable, response.ErrStorageUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range denials {
		t.Run(string(tt.code), func(t *testing.T) {
			r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{err: tt.err}, &stubSubmitter{}, &stubResults{}, zerolog.Nop()))
			w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/authorize", "")
			if w.Code != tt.status || errCode(env) != tt.code {
				t.Errorf("got %d %s, want %d %s", w.Code, errCode(env), tt.status, tt.code)
			}
		})
	}
}

func TestSubmitExam(t *testing.T) {
	examID := uuid.New()
	attemptID := uuid.New()

	t.Run("fills exam and student from the request context", func(t *testing.T) {
		sub := &stubSubmitter{}
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, sub, &stubResults{}, zerolog.Nop()))

		body := fmt.Sprintf(`{"attempt_id":%q,"answers":{},"integrity":{"tab_switches":1}}`, attemptID)
		w, _ := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/submit", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if sub.got.ExamID != examID || sub.got.StudentID != studentID || sub.got.AttemptID != attemptID {
			t.Errorf("submitter got %+v", sub.got)
		}
		if sub.got.Integrity.TabSwitches != 1 {
			t.Errorf("tab switches = %d, want 1", sub.got.Integrity.TabSwitches)
		}
	})

	t.Run("malformed answer is rejected alone", func(t *testing.T) {
		sub := &stubSubmitter{}
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, sub, &stubResults{}, zerolog.Nop()))

		good, bad := uuid.New(), uuid.New()
		body := fmt.Sprintf(`{"attempt_id":%q,"answers":{%q:{"kind":"SINGLE_CHOICE","value":"A"},%q:{"kind":"MULTI_CHOICE","value":"B"}}}`,
			attemptID, good, bad)
		w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/submit", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if sub.calls != 1 {
			t.Fatalf("submitter called %d times, want 1", sub.calls)
		}
		if a, ok := sub.got.Answers[good]; !ok || a.Text != "A" || len(sub.got.Answers) != 1 {
			t.Errorf("answers = %+v", sub.got.Answers)
		}

		var data model.SubmitResult
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(data.Rejected) != 1 || data.Rejected[0].QuestionID != bad {
			t.Errorf("rejected = %+v, want only %s", data.Rejected, bad)
		}
	})

	t.Run("attempt id is required", func(t *testing.T) {
		sub := &stubSubmitter{}
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, sub, &stubResults{}, zerolog.Nop()))

		w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/submit", `{"answers":{}}`)
		if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
			t.Errorf("got %d %s", w.Code, errCode(env))
		}
		if _, ok := env.Error.Fields["attempt_id"]; !ok {
			t.Errorf("fields = %v, want attempt_id", env.Error.Fields)
		}
		if sub.calls != 0 {
			t.Errorf("submitter called %d times", sub.calls)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		sub := &stubSubmitter{err: model.ErrDuplicateSubmission}
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, sub, &stubResults{}, zerolog.Nop()))

		body := fmt.Sprintf(`{"attempt_id":%q}`, attemptID)
		w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/submit", body)
		if w.Code != http.StatusConflict || errCode(env) != response.ErrDuplicateSubmission {
			t.Errorf("got %d %s", w.Code, errCode(env))
		}
	})

	t.Run("closed window", func(t *testing.T) {
		sub := &stubSubmitter{err: model.ErrSubmissionClosed}
		r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, sub, &stubResults{}, zerolog.Nop()))

		body := fmt.Sprintf(`{"attempt_id":%q}`, attemptID)
		w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/submit", body)
		if w.Code != http.StatusForbidden || errCode(env) != response.ErrSubmissionClosed {
			t.Errorf("got %d %s", w.Code, errCode(env))
		}
	})
}

func TestGetResults(t *testing.T) {
	results := &stubResults{results: []model.StudentResult{{ExamTitle: "UTS", TotalScore: 2, MaxScore: 3}}}
	r := studentRouter(NewStudentPortalHandler(&stubAuthorizer{}, &stubSubmitter{}, results, zerolog.Nop()))

	w, env := do(t, r, http.MethodGet, "/results", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Results []model.StudentResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Results) != 1 || data.Results[0].ExamTitle != "UTS" {
		t.Errorf("results = %+v", data.Results)
	}
}

func TestHandlersRequireClaims(t *testing.T) {
	h := NewStudentPortalHandler(&stubAuthorizer{}, &stubSubmitter{}, &stubResults{}, zerolog.Nop())
	r := gin.New()
	r.GET("/results", h.GetResults)

	w, env := do(t, r, http.MethodGet, "/results", "")
	if w.Code != http.StatusUnauthorized || errCode(env) != response.ErrTokenRequired {
		t.Errorf("got %d %s", w.Code, errCode(env))
	}
}

// ─── Teacher ────────────────────────────────────────────────────────

func teacherRouter(h *ExamHandler) *gin.Engine {
	r := gin.New()
	r.Use(withClaims(service.TokenTypeTeacher, teacherID))
	r.GET("/exams", h.ListExams)
	r.POST("/exams", h.CreateExam)
	r.GET("/exams/:exam_id", h.GetExam)
	r.POST("/exams/:exam_id/publish", h.PublishExam)
	r.PUT("/exams/:exam_id/schedule", h.ScheduleExam)
	r.PUT("/exams/:exam_id/sections", h.ReplaceSections)
	r.GET("/exams/:exam_id/submissions", h.ListSubmissions)
	r.GET("/exams/:exam_id/analytics", h.GetAnalytics)
	r.GET("/submissions/:submission_id", h.GetSubmission)
	r.POST("/submissions/:submission_id/grade", h.GradeSubmission)
	return r
}

func TestListSubmissionsPagination(t *testing.T) {
	examID := uuid.New()
	tests := []struct {
		name        string
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 20},
		{"explicit", "?page=2&per_page=10", 2, 10},
		{"clamped", "?page=0&per_page=500", 1, 20},
		{"garbage", "?page=x&per_page=y", 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grader := &stubGrader{items: []model.SubmissionSummary{{StudentID: 1}}, total: 45}
			r := teacherRouter(NewExamHandler(&stubExams{}, grader, zerolog.Nop()))

			w, env := do(t, r, http.MethodGet, "/exams/"+examID.String()+"/submissions"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if grader.page != tt.wantPage || grader.perPage != tt.wantPerPage {
				t.Errorf("grader got page %d per_page %d", grader.page, grader.perPage)
			}
			if env.Pagination == nil || env.Pagination.TotalItems != 45 {
				t.Fatalf("pagination = %+v", env.Pagination)
			}
			wantPages := (45 + tt.wantPerPage - 1) / tt.wantPerPage
			if env.Pagination.TotalPages != wantPages {
				t.Errorf("total pages = %d, want %d", env.Pagination.TotalPages, wantPages)
			}
		})
	}
}

func TestTeacherOwnership(t *testing.T) {
	examID := uuid.New()
	exams := &stubExams{err: model.ErrNotExamOwner}
	r := teacherRouter(NewExamHandler(exams, &stubGrader{err: model.ErrNotExamOwner}, zerolog.Nop()))

	for _, path := range []string{"/exams/" + examID.String(), "/exams/" + examID.String() + "/analytics"} {
		w, env := do(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusForbidden || errCode(env) != response.ErrNotExamAuthor {
			t.Errorf("%s: got %d %s", path, w.Code, errCode(env))
		}
	}

	w, env := do(t, r, http.MethodPost, "/exams/"+examID.String()+"/publish", "")
	if w.Code != http.StatusForbidden || errCode(env) != response.ErrNotExamAuthor {
		t.Errorf("publish: got %d %s", w.Code, errCode(env))
	}
}

func TestReplaceSections(t *testing.T) {
	examID := uuid.New()
	exams := &stubExams{exam: &model.Exam{ID: examID}}
	r := teacherRouter(NewExamHandler(exams, &stubGrader{}, zerolog.Nop()))

	w, env := do(t, r, http.MethodPut, "/exams/"+examID.String()+"/sections", `{"sections":[]}`)
	if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
		t.Errorf("empty sections: got %d %s", w.Code, errCode(env))
	}

	body := fmt.Sprintf(`{"sections":[{"name":"A","question_ids":[%q]}]}`, uuid.New())
	w, _ = do(t, r, http.MethodPut, "/exams/"+examID.String()+"/sections", body)
	if w.Code != http.StatusOK {
		t.Errorf("valid sections: status = %d, body %s", w.Code, w.Body.String())
	}

	exams.err = model.ErrExamPublished
	w, env = do(t, r, http.MethodPut, "/exams/"+examID.String()+"/sections", body)
	if w.Code != http.StatusConflict || errCode(env) != response.ErrExamPublished {
		t.Errorf("published: got %d %s", w.Code, errCode(env))
	}
}

func TestGradeSubmission(t *testing.T) {
	subID := uuid.New()
	tests := []struct {
		name      string
		body      string
		err       error
		status    int
		code      response.ErrCode
		wantScore float64
	}{
		{"ok", `{"score":2.5,"feedback":"bagus"}`, nil, http.StatusOK, "", 2.5},
		{"zero is a score", `{"score":0}`, nil, http.StatusOK, "", 0},
		{"missing score", `{"feedback":"x"}`, nil, http.StatusBadRequest, response.ErrValidation, 0},
		{"out of range", `{"score":99}`, fmt.Errorf("%w: must be between 0 and 3", model.ErrInvalidScore), http.StatusBadRequest, response.ErrInvalidScore, 99},
		{"not found", `{"score":1}`, model.ErrSubmissionNotFound, http.StatusNotFound, response.ErrSubmissionNotFound, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grader := &stubGrader{err: tt.err, score: -1}
			r := teacherRouter(NewExamHandler(&stubExams{}, grader, zerolog.Nop()))

			w, env := do(t, r, http.MethodPost, "/submissions/"+subID.String()+"/grade", tt.body)
			if w.Code != tt.status || errCode(env) != tt.code {
				t.Fatalf("got %d %s, want %d %s", w.Code, errCode(env), tt.status, tt.code)
			}
			if tt.status != http.StatusBadRequest || tt.code == response.ErrInvalidScore {
				if grader.score != tt.wantScore {
					t.Errorf("grader score = %v, want %v", grader.score, tt.wantScore)
				}
			}
		})
	}
}

func TestGetSubmission(t *testing.T) {
	subID := uuid.New()
	qid := uuid.New()
	answer := model.TextAnswer(model.QuestionTypeSingleChoice, "A")

	t.Run("owner", func(t *testing.T) {
		grader := &stubGrader{detail: &model.SubmissionDetail{
			ExamTitle: "UTS",
			Questions: []model.GradedAnswer{{QuestionID: qid, SectionName: "Aljabar", Answer: &answer, IsCorrect: true}},
		}}
		r := teacherRouter(NewExamHandler(&stubExams{}, grader, zerolog.Nop()))

		w, env := do(t, r, http.MethodGet, "/submissions/"+subID.String(), "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if grader.teacher != teacherID {
			t.Errorf("grader got teacher %d", grader.teacher)
		}
		var data model.SubmissionDetail
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if data.Submission.ID != subID || len(data.Questions) != 1 {
			t.Fatalf("data = %+v", data)
		}
		q := data.Questions[0]
		if !q.IsCorrect || q.Answer == nil || q.Answer.Text != "A" || q.Answer.Kind != model.QuestionTypeSingleChoice {
			t.Errorf("question = %+v", q)
		}
	})

	tests := []struct {
		name   string
		path   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"bad id", "/submissions/nope", nil, http.StatusBadRequest, response.ErrInvalidID},
		{"not owner", "/submissions/" + subID.String(), model.ErrSubmissionNotFound, http.StatusNotFound, response.ErrSubmissionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := teacherRouter(NewExamHandler(&stubExams{}, &stubGrader{err: tt.err}, zerolog.Nop()))
			w, env := do(t, r, http.MethodGet, tt.path, "")
			if w.Code != tt.status || errCode(env) != tt.code {
				t.Errorf("got %d %s, want %d %s", w.Code, errCode(env), tt.status, tt.code)
			}
		})
	}
}

func TestCreateExam(t *testing.T) {
	valid := `{"title":"Ulangan","class_id":7,"duration_minutes":45,"pass_percentage":70}`
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"created", valid, nil, http.StatusCreated, ""},
		{"missing title", `{"class_id":7,"duration_minutes":45}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"pass mark above 100", `{"title":"U","class_id":7,"duration_minutes":45,"pass_percentage":101}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"section without questions", `{"title":"U","class_id":7,"duration_minutes":45,"sections":[{"name":"A","question_ids":[]}]}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"foreign class", valid, model.ErrNotClassOwner, http.StatusForbidden, response.ErrNotClassOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exams := &stubExams{err: tt.err}
			r := teacherRouter(NewExamHandler(exams, &stubGrader{}, zerolog.Nop()))

			w, env := do(t, r, http.MethodPost, "/exams", tt.body)
			if w.Code != tt.status || errCode(env) != tt.code {
				t.Fatalf("got %d %s, want %d %s", w.Code, errCode(env), tt.status, tt.code)
			}
			if tt.status == http.StatusBadRequest && exams.created != nil {
				t.Error("invalid request reached the service")
			}
			if tt.status != http.StatusCreated {
				return
			}
			var data struct {
				Exam model.Exam `json:"exam"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if data.Exam.TeacherID != teacherID || data.Exam.ClassID != 7 || exams.created.DurationMinutes != 45 {
				t.Errorf("exam = %+v", data.Exam)
			}
		})
	}
}

func TestListTeacherExams(t *testing.T) {
	exams := &stubExams{exam: &model.Exam{ID: uuid.New(), Title: "UTS"}}
	r := teacherRouter(NewExamHandler(exams, &stubGrader{}, zerolog.Nop()))

	w, env := do(t, r, http.MethodGet, "/exams", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Exams []model.Exam `json:"exams"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Exams) != 1 || data.Exams[0].Title != "UTS" {
		t.Errorf("exams = %+v", data.Exams)
	}
}

func TestListStudentExams(t *testing.T) {
	auth := &stubAuthorizer{exams: []model.StudentExam{
		{ExamID: uuid.New(), Title: "Kuis", Status: model.ExamStatusUpcoming},
		{ExamID: uuid.New(), Title: "UTS", Status: model.ExamStatusCompleted},
	}}
	r := studentRouter(NewStudentPortalHandler(auth, &stubSubmitter{}, &stubResults{}, zerolog.Nop()))

	w, env := do(t, r, http.MethodGet, "/exams", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if auth.got.studentID != studentID {
		t.Errorf("authorizer got student %d", auth.got.studentID)
	}
	var data struct {
		Exams []model.StudentExam `json:"exams"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Exams) != 2 || data.Exams[0].Status != model.ExamStatusUpcoming || data.Exams[1].Status != model.ExamStatusCompleted {
		t.Errorf("exams = %+v", data.Exams)
	}

	auth.err = model.ErrStorageFault
	w, env = do(t, r, http.MethodGet, "/exams", "")
	if w.Code != http.StatusServiceUnavailable || errCode(env) != response.ErrStorageUnavailable {
		t.Errorf("storage fault: got %d %s", w.Code, errCode(env))
	}
}

func TestClassifyErrorUnwrapsValidation(t *testing.T) {
	err := fmt.Errorf("answer: %w", &model.ValidationError{QuestionID: uuid.New(), Reason: "bad"})
	status, code := classifyError(err)
	if status != http.StatusBadRequest || code != response.ErrInvalidAnswer {
		t.Errorf("got %d %s", status, code)
	}
}

func TestMergeProgress(t *testing.T) {
	rows := mergeProgress(&service.StudentProgressSnapshot{
		AnsweredCounts:  map[int]int64{1: 4, 2: 1},
		IntegrityCounts: map[int]int64{2: 3, 3: 2},
	})

	got := make(map[int][2]int64, len(rows))
	for _, row := range rows {
		got[row["student_id"].(int)] = [2]int64{row["answered_count"].(int64), row["integrity_events"].(int64)}
	}
	want := map[int][2]int64{1: {4, 0}, 2: {1, 3}, 3: {0, 2}}
	if len(got) != len(want) {
		t.Fatalf("rows = %v", got)
	}
	for sid, w := range want {
		if got[sid] != w {
			t.Errorf("student %d = %v, want %v", sid, got[sid], w)
		}
	}
}
