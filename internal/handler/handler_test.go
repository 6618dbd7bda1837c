package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examdesk/internal/exam"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/llm"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/store"
)

const teacherPassword = "s3cret"

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	t      *testing.T
	store  *store.Store
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLLM(t, nil)
}

func newTestEnvWithLLM(t *testing.T, l *llm.Client) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := model.DefaultExamConfig()
	cfg.QuestionCount = 2
	eng, err := exam.New(s, cfg)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(teacherPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	h, err := New(s, eng, l, model.ServerConfig{TeacherHash: hash})
	if err != nil {
		t.Fatalf("create handler: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{t: t, store: s, server: srv, client: client}
}

func (e *testEnv) seedSet(name string, n int) model.QuestionSet {
	e.t.Helper()
	set, err := e.store.CreateSet(name)
	if err != nil {
		e.t.Fatalf("create set: %v", err)
	}
	for i := range n {
		_, err := e.store.InsertQuestion(model.Question{
			SetID:   set.ID,
			Text:    fmt.Sprintf("Question %d?", i+1),
			Options: [4]string{"right", "wrong 1", "wrong 2", "wrong 3"},
			Correct: model.OptionA,
		})
		if err != nil {
			e.t.Fatalf("insert question: %v", err)
		}
	}
	return set
}

func (e *testEnv) csrf() string {
	e.t.Helper()
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	e.get("/")
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	e.t.Fatal("no CSRF cookie issued")
	return ""
}

func (e *testEnv) get(path string) (*http.Response, string) {
	e.t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) post(path string, form url.Values) (*http.Response, string) {
	e.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get(csrfFieldName) == "" {
		form.Set(csrfFieldName, e.csrf())
	}
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) loginStudent(set model.QuestionSet, email string) *http.Response {
	e.t.Helper()
	resp, _ := e.post("/login", url.Values{
		"email":     {email},
		"index":     {"s-001"},
		"set_token": {set.Token},
	})
	return resp
}

func (e *testEnv) loginTeacher() {
	e.t.Helper()
	resp, _ := e.post("/teacher/login", url.Values{"password": {teacherPassword}})
	if resp.StatusCode != http.StatusSeeOther {
		e.t.Fatalf("teacher login: status %d", resp.StatusCode)
	}
}

func expectRedirect(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != want {
		t.Fatalf("redirect to %q, want %q", got, want)
	}
}

func TestStudentExamFlow(t *testing.T) {
	env := newTestEnv(t)
	set := env.seedSet("Physics", 3)

	expectRedirect(t, env.loginStudent(set, "Ann@Example.com"), "/exam")

	ex, err := env.store.FindExam(set.ID, "ann@example.com", "s-001", false)
	if err != nil || ex == nil {
		t.Fatalf("active exam not created: %v", err)
	}
	if len(ex.Questions) != 2 {
		t.Fatalf("expected 2 sampled questions, got %d", len(ex.Questions))
	}

	resp, body := env.get("/exam")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exam page: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, ex.Questions[0].Text) {
		t.Error("exam page should show the sampled questions")
	}
	if strings.Contains(body, `"correct"`) {
		t.Error("exam page must not leak the answer key")
	}

	first := ex.Questions[0]
	resp, body = env.post("/exam/save", url.Values{"q_" + first.Key(): {string(first.Correct)}})
	var saved saveResponse
	if err := json.Unmarshal([]byte(body), &saved); err != nil || !saved.OK || resp.StatusCode != http.StatusOK {
		t.Fatalf("autosave: status %d body %q", resp.StatusCode, body)
	}
	stored, _ := env.store.GetExam(ex.ID)
	if stored.Answers[first.Key()] != first.Correct {
		t.Errorf("autosave not persisted: %v", stored.Answers)
	}

	resp, _ = env.post("/exam/submit", url.Values{"q_" + first.Key(): {string(first.Correct)}})
	expectRedirect(t, resp, fmt.Sprintf("/result/%d", ex.ID))

	resp, body = env.get(fmt.Sprintf("/result/%d", ex.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result page: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "1 of 2 correct (50.0%)") || !strings.Contains(body, "Passed") {
		t.Errorf("unexpected result page:\n%s", body)
	}

	// A finished exam no longer accepts answers.
	_, body = env.post("/exam/save", url.Values{"q_" + first.Key(): {"b"}})
	if err := json.Unmarshal([]byte(body), &saved); err != nil || saved.OK {
		t.Errorf("save after finish should report ok=false, got %q", body)
	}

	// Logging in again lands on the result, not a new exam.
	expectRedirect(t, env.loginStudent(set, "ann@example.com"), fmt.Sprintf("/result/%d", ex.ID))
	resp, _ = env.get("/exam")
	expectRedirect(t, resp, fmt.Sprintf("/result/%d", ex.ID))
}

func TestStudentLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	empty := env.seedSet("Empty", 0)

	tests := []struct {
		name   string
		form   url.Values
		status int
		want   string
	}{
		{
			name:   "invalid email",
			form:   url.Values{"email": {"nope"}, "index": {"1"}, "set_token": {empty.Token}},
			status: http.StatusBadRequest,
			want:   "Please fill in all fields correctly.",
		},
		{
			name:   "unknown set",
			form:   url.Values{"email": {"a@b.cd"}, "index": {"1"}, "set_token": {"8f14e45f-ceea-467f-a0e6-1b3c5e1a9d21"}},
			status: http.StatusNotFound,
			want:   "Not found.",
		},
		{
			name:   "empty bank",
			form:   url.Values{"email": {"a@b.cd"}, "index": {"1"}, "set_token": {empty.Token}},
			status: http.StatusConflict,
			want:   "No questions in this exam yet.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post("/login", tt.form)
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body should contain %q", tt.want)
			}
		})
	}
}

func TestCSRFRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	env.csrf()

	resp, err := env.client.PostForm(env.server.URL+"/login", url.Values{"email": {"a@b.cd"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status %d, want 403", resp.StatusCode)
	}

	resp2, _ := env.post("/login", url.Values{csrfFieldName: {"forged"}})
	if resp2.StatusCode != http.StatusForbidden {
		t.Errorf("forged token: status %d, want 403", resp2.StatusCode)
	}
}

func TestExamRequiresStudentSession(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get("/exam")
	expectRedirect(t, resp, "/")
}

func TestResultOfAnotherExamIsHidden(t *testing.T) {
	env := newTestEnv(t)
	set := env.seedSet("Physics", 2)
	env.loginStudent(set, "ann@example.com")
	resp, _ := env.get("/result/999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestTeacherLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get("/teacher")
	expectRedirect(t, resp, "/teacher/login")

	resp, body := env.post("/teacher/login", url.Values{"password": {"wrong"}})
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Incorrect password.") {
		t.Fatalf("wrong password: status %d", resp.StatusCode)
	}

	env.loginTeacher()
	resp, body = env.get("/teacher")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Question sets") {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}

	resp, _ = env.post("/teacher/logout", nil)
	expectRedirect(t, resp, "/teacher/login")
	resp, _ = env.get("/teacher")
	expectRedirect(t, resp, "/teacher/login")
}

func TestTeacherManagesQuestions(t *testing.T) {
	env := newTestEnv(t)
	env.loginTeacher()

	resp, _ := env.post("/teacher/sets", url.Values{"name": {"Chemistry"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("create set: status %d", resp.StatusCode)
	}
	set, err := env.store.GetSetByName("Chemistry")
	if err != nil {
		t.Fatalf("set not created: %v", err)
	}
	setPath := fmt.Sprintf("/teacher/sets/%d", set.ID)

	resp, _ = env.post(setPath+"/questions", url.Values{
		"text": {"H2O is?"}, "option_a": {"water"}, "option_b": {"salt"},
		"option_c": {"sugar"}, "option_d": {"air"}, "correct": {"a"},
	})
	expectRedirect(t, resp, setPath+"?flash=QuestionAdded")

	resp, body := env.post(setPath+"/questions", url.Values{"text": {"incomplete"}, "correct": {"z"}})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Please fill in all fields correctly.") {
		t.Errorf("invalid question: status %d", resp.StatusCode)
	}

	qs, err := env.store.ListQuestionsBySet(set.ID)
	if err != nil || len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d (%v)", len(qs), err)
	}
	editPath := fmt.Sprintf("/teacher/questions/%d/edit", qs[0].ID)

	resp, body = env.get(editPath)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "H2O is?") {
		t.Fatalf("edit page: status %d", resp.StatusCode)
	}
	resp, _ = env.post(editPath, url.Values{
		"text": {"H2O is"}, "option_a": {"salt"}, "option_b": {"water"},
		"option_c": {"sugar"}, "option_d": {"air"}, "correct": {"b"},
	})
	expectRedirect(t, resp, setPath+"?flash=QuestionUpdated")
	q, _ := env.store.GetQuestion(qs[0].ID)
	if q.Text != "H2O is" || q.CorrectText() != "water" {
		t.Errorf("question not updated: %+v", q)
	}

	resp, _ = env.post(fmt.Sprintf("/teacher/questions/%d/delete", q.ID), nil)
	expectRedirect(t, resp, setPath+"?flash=QuestionDeleted")
	if _, err := env.store.GetQuestion(q.ID); err == nil {
		t.Error("question should be deleted")
	}

	resp, _ = env.get("/teacher/questions/9999/edit")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown question: status %d, want 404", resp.StatusCode)
	}
}

func (e *testEnv) upload(path, filename, content string) (*http.Response, string) {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField(csrfFieldName, e.csrf())
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		e.t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	mw.Close()

	resp, err := e.client.Post(e.server.URL+path, mw.FormDataContentType(), &buf)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestTeacherImportAndExportQuestions(t *testing.T) {
	env := newTestEnv(t)
	set := env.seedSet("Biology", 0)
	env.loginTeacher()
	setPath := fmt.Sprintf("/teacher/sets/%d", set.ID)

	csv := "text,option_a,option_b,option_c,option_d,correct\n" +
		"Cell powerhouse?,mitochondria,nucleus,ribosome,wall,a\n" +
		"DNA shape?,line,double helix,cube,ring,b\n" +
		"Broken,,,,,a\n"

	resp, body := env.upload(setPath+"/import", "bio.csv", csv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Imported 2 questions.") || !strings.Contains(body, "1 row skipped.") {
		t.Errorf("unexpected import report:\n%s", body)
	}

	_, body = env.upload(setPath+"/import", "bio.csv", csv)
	if !strings.Contains(body, "already imported") {
		t.Error("re-uploading the same file should be detected")
	}
	if n, _ := env.store.QuestionCount(&set.ID); n != 2 {
		t.Errorf("expected 2 questions after duplicate upload, got %d", n)
	}

	resp, body = env.get(setPath + "/questions.csv")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("export: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(body, "text,option_a,option_b,option_c,option_d,correct\n") ||
		!strings.Contains(body, "DNA shape?,line,double helix,cube,ring,b") {
		t.Errorf("unexpected export:\n%s", body)
	}
}

func TestDraftDisabledWithoutLLM(t *testing.T) {
	env := newTestEnv(t)
	set := env.seedSet("Art", 0)
	env.loginTeacher()
	resp, _ := env.post(fmt.Sprintf("/teacher/sets/%d/draft", set.ID), url.Values{"topic": {"colors"}, "count": {"2"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

// fakeChatServer answers every chat completion with content and counts the calls.
func fakeChatServer(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestDraftQuestions(t *testing.T) {
	srv, calls := fakeChatServer(t, `{"questions":[{"text":"Primary colors count?","options":["2","3","4","5"],"correct":"b"}]}`)
	client, err := llm.New(srv.URL+"/v1", "key", "test-model")
	if err != nil {
		t.Fatalf("llm client: %v", err)
	}
	env := newTestEnvWithLLM(t, client)
	set := env.seedSet("Art", 0)
	env.loginTeacher()

	resp, body := env.post(fmt.Sprintf("/teacher/sets/%d/draft", set.ID), url.Values{"topic": {"colors"}, "count": {"1"}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Added 1 drafted question.") {
		t.Fatalf("draft: status %d", resp.StatusCode)
	}
	qs, err := env.store.ListQuestionsBySet(set.ID)
	if err != nil || len(qs) != 1 || qs[0].Correct != model.OptionB {
		t.Fatalf("drafted questions = %+v, err %v", qs, err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("LLM calls = %d, want 1", n)
	}
}

func TestDraftQuestionsUnknownSet(t *testing.T) {
	srv, calls := fakeChatServer(t, `{"questions":[]}`)
	client, err := llm.New(srv.URL+"/v1", "key", "test-model")
	if err != nil {
		t.Fatalf("llm client: %v", err)
	}
	env := newTestEnvWithLLM(t, client)
	env.loginTeacher()

	resp, _ := env.post("/teacher/sets/999/draft", url.Values{"topic": {"colors"}, "count": {"2"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("LLM should not be called for a missing set, got %d calls", n)
	}
}

func TestTeacherResults(t *testing.T) {
	env := newTestEnv(t)
	set := env.seedSet("History", 2)

	env.loginStudent(set, "bob@example.com")
	ex, err := env.store.FindExam(set.ID, "bob@example.com", "s-001", false)
	if err != nil || ex == nil {
		t.Fatalf("exam not created: %v", err)
	}
	answers := url.Values{}
	for _, q := range ex.Questions {
		answers.Set("q_"+q.Key(), string(q.Correct))
	}
	env.post("/exam/submit", answers)

	env.loginTeacher()
	resp, body := env.get("/teacher/results")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "bob@example.com") || !strings.Contains(body, "100.0%") {
		t.Fatalf("results page: status %d\n%s", resp.StatusCode, body)
	}

	resp, body = env.get(fmt.Sprintf("/teacher/results/%d", ex.ID))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Correct answer") {
		t.Errorf("result detail: status %d", resp.StatusCode)
	}

	resp, body = env.get(fmt.Sprintf("/teacher/results.csv?set=%d", set.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results CSV: status %d", resp.StatusCode)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "History,bob@example.com,s-001,2,2,100.0%,YES,") {
		t.Errorf("unexpected CSV:\n%s", body)
	}

	resp, _ = env.get("/teacher/results?set=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad set filter: status %d, want 400", resp.StatusCode)
	}
}

func TestAnswersFromForm(t *testing.T) {
	got := answersFromForm(url.Values{
		"q_12":       {"a", "c"},
		"q_":         {"b"},
		"csrf_token": {"x"},
		"q_7":        {"d"},
	})
	if len(got) != 2 || got["12"] != "c" || got["7"] != "d" {
		t.Errorf("unexpected answers %v", got)
	}
}
