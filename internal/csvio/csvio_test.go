package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

func TestReadQuestionsSkipPolicy(t *testing.T) {
	input := strings.Join([]string{
		"text,option_a,option_b,option_c,option_d,correct",
		"What is 2+2?,3,4,5,6,B",
		"Missing C,1,2,,4,a",
		"Bad designator,1,2,3,4,x",
		"Short row,1,2",
		`"Quoted, text",yes,no,maybe,never, d `,
	}, "\n")

	qs, skipped, err := ReadQuestions(strings.NewReader(input), 7)
	if err != nil {
		t.Fatalf("ReadQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 valid questions, got %d", len(qs))
	}
	if len(skipped) != 3 {
		t.Fatalf("expected 3 skipped rows, got %d: %v", len(skipped), skipped)
	}
	if qs[0].Correct != model.OptionB || qs[0].Options[1] != "4" || qs[0].SetID != 7 {
		t.Errorf("unexpected first question %+v", qs[0])
	}
	if qs[1].Text != "Quoted, text" || qs[1].Correct != model.OptionD {
		t.Errorf("unexpected second question %+v", qs[1])
	}
	if skipped[0].Line != 3 {
		t.Errorf("expected first skipped row on line 3, got %d", skipped[0].Line)
	}
}

func TestReadQuestionsMissingColumn(t *testing.T) {
	input := "text,option_a,option_b,option_d,correct\nQ,1,2,4,a\n"
	qs, skipped, err := ReadQuestions(strings.NewReader(input), 1)
	if err != nil {
		t.Fatalf("ReadQuestions: %v", err)
	}
	if len(qs) != 0 || len(skipped) != 1 {
		t.Errorf("expected the row to be skipped, got %d questions and %d skipped", len(qs), len(skipped))
	}
}

func TestReadQuestionsColumnOrderAndBOM(t *testing.T) {
	input := "\ufeffCorrect,Text,Option_D,Option_C,Option_B,Option_A\nc,Reordered?,d,c,b,a\n"
	qs, _, err := ReadQuestions(strings.NewReader(input), 1)
	if err != nil {
		t.Fatalf("ReadQuestions: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qs))
	}
	if qs[0].Options != [4]string{"a", "b", "c", "d"} || qs[0].CorrectText() != "c" {
		t.Errorf("unexpected question %+v", qs[0])
	}
}

func TestReadQuestionsEmpty(t *testing.T) {
	qs, skipped, err := ReadQuestions(strings.NewReader(""), 1)
	if err != nil || qs != nil || skipped != nil {
		t.Errorf("expected nothing for empty input, got %v %v %v", qs, skipped, err)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	in := []model.Question{
		{Text: "Capital of France?", Options: [4]string{"Paris", "Rome", "Oslo", "Bern"}, Correct: model.OptionA},
		{Text: `Says "hi"`, Options: [4]string{"a,b", "c", "d", "e"}, Correct: model.OptionD},
	}
	var buf bytes.Buffer
	if err := WriteQuestions(&buf, in); err != nil {
		t.Fatalf("WriteQuestions: %v", err)
	}
	out, skipped, err := ReadQuestions(&buf, 3)
	if err != nil {
		t.Fatalf("ReadQuestions: %v", err)
	}
	if len(skipped) != 0 || len(out) != 2 {
		t.Fatalf("round trip lost rows: %d read, %d skipped", len(out), len(skipped))
	}
	for i := range in {
		if out[i].Text != in[i].Text || out[i].Options != in[i].Options || out[i].Correct != in[i].Correct {
			t.Errorf("row %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestWriteResults(t *testing.T) {
	start := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)
	rows := []model.ResultRow{{
		SetName:    "Physics",
		Email:      "ann@example.com",
		Index:      "s1",
		Score:      5,
		Total:      6,
		Percentage: 83.3,
		Passed:     true,
		StartedAt:  start,
		FinishedAt: start.Add(19 * time.Minute),
	}}
	var buf bytes.Buffer
	if err := WriteResults(&buf, rows); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	want := "set,email,index,score,total,percentage,passed,started_at,finished_at\n" +
		"Physics,ann@example.com,s1,5,6,83.3%,YES,2026-01-15 08:30,2026-01-15 08:49\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

type recorder struct{ got []model.Question }

func (r *recorder) InsertQuestions(qs []model.Question) error {
	r.got = append(r.got, qs...)
	return nil
}

func TestImport(t *testing.T) {
	input := "text,option_a,option_b,option_c,option_d,correct\nQ1,1,2,3,4,a\nQ2,1,2,3,4,e\n"
	var rec recorder
	rep, err := Import(strings.NewReader(input), 9, &rec)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if rep != (model.ImportReport{Imported: 1, Skipped: 1}) {
		t.Errorf("report = %+v", rep)
	}
	if len(rec.got) != 1 || rec.got[0].SetID != 9 {
		t.Errorf("stored %+v", rec.got)
	}
}
