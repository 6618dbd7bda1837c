package views

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
)

func renderString(tb testing.TB, c templ.Component) string {
	tb.Helper()
	if err := appI18n.Init("en"); err != nil {
		tb.Fatalf("i18n init: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	ctx = model.ContextWithBasePath(ctx, "/exams")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")

	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		tb.Fatalf("render: %v", err)
	}
	return sb.String()
}

func sampleExam() model.Exam {
	score, total, ok := 1, 2, true
	finished := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	return model.Exam{
		ID:    5,
		SetID: 1,
		Email: "ann@example.com",
		Index: "s-042",
		Questions: []model.SnapshotQuestion{
			{ID: 7, Text: "Capital of France?", Options: [4]string{"Paris", "Rome", "Oslo", "Bern"}, Correct: model.OptionA},
			{ID: 9, Text: "2 + 2?", Options: [4]string{"3", "4", "5", "22"}, Correct: model.OptionB},
		},
		Answers:    map[string]model.Option{"7": model.OptionA},
		StartedAt:  finished.Add(-20 * time.Minute),
		FinishedAt: &finished,
		Score:      &score,
		Total:      &total,
		Passed:     &ok,
	}
}

func TestExamPage(t *testing.T) {
	body := renderString(t, ExamPage(ExamData{Exam: sampleExam(), SetName: "Geography", RemainingSeconds: 90}))

	for _, want := range []string{
		`action="/exams/exam/submit"`,
		`data-save-url="/exams/exam/save"`,
		`data-remaining="90"`,
		`name="csrf_token" value="tok123"`,
		`<input type="radio" name="q_7" value="a" checked>`,
		`<input type="radio" name="q_9" value="b">`,
		"Capital of France?",
		`<span id="answered">1</span>/2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exam page missing %q", want)
		}
	}
	if n := strings.Count(body, " checked>"); n != 1 {
		t.Errorf("expected exactly one checked radio, got %d", n)
	}
	if strings.Contains(body, "/teacher/logout") {
		t.Error("student page should not show the teacher navigation")
	}
}

func TestResultPageKey(t *testing.T) {
	ex := sampleExam()

	student := renderString(t, ResultPage(ResultData{Exam: ex, SetName: "Geography"}))
	if !strings.Contains(student, "1 of 2 correct (50.0%)") || !strings.Contains(student, `class="pass"`) {
		t.Errorf("student result missing score line or status:\n%s", student)
	}
	if strings.Contains(student, "no answer") {
		t.Error("student result should not reveal the answer key")
	}

	teacher := renderString(t, ResultPage(ResultData{Exam: ex, SetName: "Geography", ShowKey: true}))
	for _, want := range []string{"a) Paris", "b) 4", "no answer", "/exams/teacher/logout"} {
		if !strings.Contains(teacher, want) {
			t.Errorf("teacher result missing %q", want)
		}
	}
}

func TestResultPageKeepsUnknownAnswer(t *testing.T) {
	ex := sampleExam()
	ex.Answers["9"] = "maybe"

	body := renderString(t, ResultPage(ResultData{Exam: ex, SetName: "Geography", ShowKey: true}))
	if !strings.Contains(body, "<td>maybe</td>") {
		t.Errorf("expected the stored answer to be shown as-is:\n%s", body)
	}
}

func TestResultsPage(t *testing.T) {
	setID := int64(3)
	rows := []model.ResultRow{{
		ExamID: 11, SetName: "History", Email: "bob@example.com", Index: "s-001",
		Score: 2, Total: 2, Passed: true,
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}}

	body := renderString(t, ResultsPage(rows, &setID))
	for _, want := range []string{`href="/exams/teacher/results/11"`, "100.0%", `href="/exams/teacher/results.csv?set=3"`} {
		if !strings.Contains(body, want) {
			t.Errorf("results page missing %q", want)
		}
	}

	empty := renderString(t, ResultsPage(nil, nil))
	if !strings.Contains(empty, `colspan="8"`) {
		t.Error("empty results page should show the no-data row")
	}
}

func TestQuestionFieldsSelectCorrect(t *testing.T) {
	q := model.Question{ID: 4, SetID: 2, Text: "H2O is?", Options: [4]string{"salt", "water", "air", "fire"}, Correct: model.OptionB}

	body := renderString(t, EditQuestionPage(q, ""))
	if !strings.Contains(body, `<option value="b" selected>b</option>`) {
		t.Errorf("expected option b selected:\n%s", body)
	}
	if !strings.Contains(body, `action="/exams/teacher/questions/4/edit"`) {
		t.Error("edit form should post to the question")
	}
}

func TestDashboardConfirmDelete(t *testing.T) {
	d := DashboardData{Sets: []model.SetSummary{{QuestionSet: model.QuestionSet{ID: 8, Token: "ABC123", Name: "Physics"}}}}

	body := renderString(t, DashboardPage(d))
	if !strings.Contains(body, `action="/exams/teacher/sets/8/delete" data-confirm="`) {
		t.Errorf("delete form should carry a confirmation prompt:\n%s", body)
	}
	if !strings.Contains(body, "n/a") {
		t.Error("average score without data should render n/a")
	}
}
