package exam_test

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pavelanni/examdesk/internal/exam"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store  *store.Store
	engine *exam.Engine
	clock  *fakeClock
	set    model.QuestionSet
}

func newFixture(t *testing.T, questions, count int) *fixture {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	set, err := s.CreateSet("Physics")
	if err != nil {
		t.Fatalf("CreateSet: %v", err)
	}
	for i := range questions {
		_, err := s.InsertQuestion(model.Question{
			SetID:   set.ID,
			Text:    fmt.Sprintf("Question %d", i+1),
			Options: [4]string{"right", "wrong 1", "wrong 2", "wrong 3"},
			Correct: model.OptionA,
		})
		if err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}

	clock := &fakeClock{t: t0}
	cfg := model.ExamConfig{Duration: 20 * time.Minute, QuestionCount: count, PassThreshold: 0.5}
	e, err := exam.New(s, cfg, exam.WithClock(clock.Now), exam.WithRand(rand.New(rand.NewPCG(3, 4))))
	if err != nil {
		t.Fatalf("exam.New: %v", err)
	}
	return &fixture{store: s, engine: e, clock: clock, set: set}
}

// correctAnswers answers every snapshot question correctly.
func correctAnswers(ex model.Exam) map[string]string {
	m := make(map[string]string)
	for _, q := range ex.Questions {
		m[q.Key()] = string(q.Correct)
	}
	return m
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := exam.New(nil, model.ExamConfig{Duration: time.Minute, QuestionCount: 5, PassThreshold: 1.5})
	if err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestResolveCreatesExam(t *testing.T) {
	f := newFixture(t, 10, 4)

	res, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if res.Finished || res.Resumed {
		t.Errorf("expected a new exam, got %+v", res)
	}
	ex := res.Exam
	if len(ex.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(ex.Questions))
	}
	seen := make(map[int64]bool)
	for _, q := range ex.Questions {
		if seen[q.ID] {
			t.Errorf("duplicate question %d in snapshot", q.ID)
		}
		seen[q.ID] = true
		if q.Options[q.Correct.Index()] != "right" {
			t.Errorf("question %d: correct designator %q points at %q", q.ID, q.Correct, q.Options[q.Correct.Index()])
		}
	}
	if len(ex.Answers) != 0 || ex.Finished() || ex.Score != nil {
		t.Errorf("new exam not pristine: %+v", ex)
	}
	if !ex.StartedAt.Equal(t0) {
		t.Errorf("started_at = %v, want %v", ex.StartedAt, t0)
	}

	stored, err := f.store.GetExam(ex.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if len(stored.Questions) != 4 || !stored.StartedAt.Equal(t0) {
		t.Errorf("stored exam differs: %+v", stored)
	}
}

func TestResolveShrinksToBankSize(t *testing.T) {
	f := newFixture(t, 3, 5)

	res, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if len(res.Exam.Questions) != 3 {
		t.Errorf("expected 3 questions, got %d", len(res.Exam.Questions))
	}
}

func TestResolveEmptyBank(t *testing.T) {
	f := newFixture(t, 0, 5)

	_, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if !errors.Is(err, model.ErrEmptyBank) {
		t.Fatalf("expected ErrEmptyBank, got %v", err)
	}
	active, err := f.store.FindExam(f.set.ID, "ann@example.com", "s1", false)
	if err != nil {
		t.Fatalf("FindExam: %v", err)
	}
	if active != nil {
		t.Error("no exam should be created for an empty bank")
	}
}

func TestResolveResumesActiveExam(t *testing.T) {
	f := newFixture(t, 10, 5)

	first, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	f.clock.Advance(10 * time.Minute)
	second, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if !second.Resumed || second.Exam.ID != first.Exam.ID {
		t.Fatalf("expected to resume exam %d, got %+v", first.Exam.ID, second)
	}
	if got := f.engine.RemainingSeconds(second.Exam, f.clock.Now()); got != 600 {
		t.Errorf("remaining = %d, want 600", got)
	}

	// A different student index gets its own exam.
	other, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s2")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if other.Exam.ID == first.Exam.ID {
		t.Error("different index must not share an exam")
	}
}

func TestOneActiveExamPerStudent(t *testing.T) {
	f := newFixture(t, 5, 5)

	res, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}

	// A racing insert for the same student is rejected by the unique index.
	_, err = f.store.CreateExam(model.Exam{
		SetID:     f.set.ID,
		Email:     "ann@example.com",
		Index:     "s1",
		Questions: res.Exam.Questions,
		StartedAt: t0,
	})
	if !errors.Is(err, model.ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}

	// Once finished, the slot no longer blocks inserts.
	if _, err := f.engine.Submit(res.Exam.ID, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.store.CreateExam(model.Exam{
		SetID: f.set.ID, Email: "ann@example.com", Index: "s1", Questions: res.Exam.Questions, StartedAt: t0,
	}); err != nil {
		t.Fatalf("CreateExam after finish: %v", err)
	}
}

func TestResolveFinishedNoRetake(t *testing.T) {
	f := newFixture(t, 5, 5)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if _, err := f.engine.Submit(res.Exam.ID, correctAnswers(res.Exam)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	again, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if !again.Finished || again.Exam.ID != res.Exam.ID {
		t.Errorf("expected finished exam %d, got %+v", res.Exam.ID, again)
	}
}

func TestExpiryFinalizesExactlyOnce(t *testing.T) {
	f := newFixture(t, 4, 4)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	answers := correctAnswers(res.Exam)
	delete(answers, res.Exam.Questions[0].Key())
	if _, err := f.engine.SaveAnswers(res.Exam.ID, answers); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}

	f.clock.Advance(25 * time.Minute)
	ex, err := f.engine.Load(res.Exam.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ex.Finished() {
		t.Fatal("expired exam presented as in progress")
	}
	want := t0.Add(25 * time.Minute)
	if !ex.FinishedAt.Equal(want) {
		t.Errorf("finished_at = %v, want %v (access time, not deadline)", ex.FinishedAt, want)
	}
	if *ex.Score != 3 || *ex.Total != 4 || !*ex.Passed {
		t.Errorf("unexpected result score=%d total=%d passed=%v", *ex.Score, *ex.Total, *ex.Passed)
	}

	f.clock.Advance(5 * time.Minute)
	again, err := f.engine.Load(res.Exam.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !again.FinishedAt.Equal(*ex.FinishedAt) || *again.Score != *ex.Score {
		t.Errorf("second access changed the result: %+v", again)
	}
}

func TestExpiredExamStaysActiveUntilTouched(t *testing.T) {
	f := newFixture(t, 3, 3)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	f.clock.Advance(time.Hour)

	stored, err := f.store.GetExam(res.Exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if stored.Finished() {
		t.Fatal("nothing should finalize an exam that nobody accessed")
	}
	if !f.engine.Expired(stored, f.clock.Now()) {
		t.Error("exam should be reported as expired")
	}
	if got := f.engine.RemainingSeconds(stored, f.clock.Now()); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestExpiredExamOnLoginIsGradedAndReplaced(t *testing.T) {
	f := newFixture(t, 5, 5)

	first, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	f.clock.Advance(21 * time.Minute)

	second, err := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if second.Exam.ID == first.Exam.ID || second.Finished || second.Resumed {
		t.Fatalf("expected a fresh exam, got %+v", second)
	}
	old, err := f.store.GetExam(first.Exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if !old.Finished() || *old.Score != 0 || *old.Passed {
		t.Errorf("expired exam not graded: %+v", old)
	}
}

func TestAutosaveOverwrites(t *testing.T) {
	f := newFixture(t, 5, 5)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	q1, q2 := res.Exam.Questions[0].Key(), res.Exam.Questions[1].Key()

	if _, err := f.engine.SaveAnswers(res.Exam.ID, map[string]string{q1: "b"}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	if _, err := f.engine.SaveAnswers(res.Exam.ID, map[string]string{q2: "c", "9999": "a"}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}

	stored, err := f.store.GetExam(res.Exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if len(stored.Answers) != 1 || stored.Answers[q2] != model.OptionC {
		t.Errorf("answers = %v, want only {%s: c}", stored.Answers, q2)
	}
}

func TestSaveAfterFinish(t *testing.T) {
	f := newFixture(t, 2, 2)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	done, err := f.engine.Submit(res.Exam.ID, correctAnswers(res.Exam))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ex, err := f.engine.SaveAnswers(res.Exam.ID, map[string]string{})
	if !errors.Is(err, model.ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
	if ex.ID != done.ID || *ex.Score != 2 {
		t.Errorf("expected finished record to be returned, got %+v", ex)
	}

	_, err = f.engine.Submit(res.Exam.ID, map[string]string{})
	if !errors.Is(err, model.ErrAlreadyFinished) {
		t.Fatalf("second submit: expected ErrAlreadyFinished, got %v", err)
	}
	stored, _ := f.store.GetExam(res.Exam.ID)
	if *stored.Score != 2 || !stored.FinishedAt.Equal(*done.FinishedAt) {
		t.Errorf("settled result changed: %+v", stored)
	}
}

func TestSubmitAfterDeadlineUsesSavedAnswers(t *testing.T) {
	f := newFixture(t, 2, 2)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	f.clock.Advance(20*time.Minute + time.Second)

	ex, err := f.engine.Submit(res.Exam.ID, correctAnswers(res.Exam))
	if !errors.Is(err, model.ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
	if *ex.Score != 0 {
		t.Errorf("late answers must not count, score = %d", *ex.Score)
	}
}

func TestGradingUsesFrozenSnapshot(t *testing.T) {
	f := newFixture(t, 2, 2)

	res, _ := f.engine.ResolveOrCreate(f.set.ID, "ann@example.com", "s1")
	answers := correctAnswers(res.Exam)

	// Rewrite and delete bank questions after the exam was created.
	bank, err := f.store.ListQuestionsBySet(f.set.ID)
	if err != nil {
		t.Fatalf("ListQuestionsBySet: %v", err)
	}
	bank[0].Correct = model.OptionD
	bank[0].Options[3] = "now right"
	if err := f.store.UpdateQuestion(bank[0]); err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	if err := f.store.DeleteQuestion(bank[1].ID); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}

	ex, err := f.engine.Submit(res.Exam.ID, answers)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if *ex.Score != 2 || *ex.Total != 2 || !*ex.Passed {
		t.Errorf("expected 2/2 from snapshot, got %d/%d", *ex.Score, *ex.Total)
	}
}

func TestRemaining(t *testing.T) {
	f := newFixture(t, 1, 1)
	ex := model.Exam{StartedAt: t0}

	tests := []struct {
		at   time.Duration
		want int
	}{
		{0, 1200},
		{90 * time.Second, 1110},
		{20 * time.Minute, 0},
		{30 * time.Minute, 0},
	}
	for _, tt := range tests {
		if got := f.engine.RemainingSeconds(ex, t0.Add(tt.at)); got != tt.want {
			t.Errorf("RemainingSeconds(+%s) = %d, want %d", tt.at, got, tt.want)
		}
	}
	if f.engine.Expired(ex, t0.Add(20*time.Minute)) {
		t.Error("exam is not expired exactly at the deadline")
	}
}
