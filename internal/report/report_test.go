package report

import (
	"testing"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

func finished(setID int64, score, total int, passed bool) model.Exam {
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	end := start.Add(12 * time.Minute)
	return model.Exam{
		SetID:      setID,
		Email:      "ann@example.com",
		Index:      "s1",
		StartedAt:  start,
		FinishedAt: &end,
		Score:      &score,
		Total:      &total,
		Passed:     &passed,
	}
}

func TestSummarize(t *testing.T) {
	st := Summarize([]model.Exam{
		finished(1, 4, 5, true),
		finished(1, 1, 5, false),
		finished(2, 3, 4, true),
		{SetID: 1}, // active, ignored
	})
	if st.Finished != 3 || st.Passed != 2 || st.Failed != 1 {
		t.Errorf("counts = %+v", st)
	}
	if st.AverageScore == nil || *st.AverageScore != 8.0/3.0 {
		t.Errorf("average = %v, want %v", st.AverageScore, 8.0/3.0)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	st := Summarize(nil)
	if st.Finished != 0 || st.AverageScore != nil {
		t.Errorf("expected empty stats with nil average, got %+v", st)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score, total int
		want         float64
	}{
		{5, 6, 83.3},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{3, 3, 100},
		{0, 4, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Percentage(tt.score, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.score, tt.total, got, tt.want)
		}
	}
	if got := FormatPercentage(Percentage(5, 6)); got != "83.3%" {
		t.Errorf("FormatPercentage = %q", got)
	}
}

func TestRows(t *testing.T) {
	rows := Rows([]model.Exam{finished(2, 3, 4, true), {SetID: 2}}, map[int64]string{2: "Chemistry"})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.SetName != "Chemistry" || r.Score != 3 || r.Total != 4 || r.Percentage != 75 || !r.Passed {
		t.Errorf("unexpected row %+v", r)
	}
	if got := r.FinishedAt.Format(TimeLayout); got != "2026-05-04 10:12" {
		t.Errorf("finished_at = %q", got)
	}
}

type fakeSource struct {
	exams []model.Exam
	scope *int64
}

func (f *fakeSource) ListFinishedExams(setID *int64) ([]model.Exam, error) {
	f.scope = setID
	var out []model.Exam
	for _, e := range f.exams {
		if setID == nil || e.SetID == *setID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) SetNames() (map[int64]string, error) {
	return map[int64]string{1: "Physics", 2: "Chemistry"}, nil
}

func TestAggregatorScope(t *testing.T) {
	src := &fakeSource{exams: []model.Exam{finished(1, 1, 2, true), finished(2, 0, 2, false)}}
	a := New(src)

	all, err := a.Dashboard(nil)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if all.Finished != 2 {
		t.Errorf("expected 2 finished overall, got %d", all.Finished)
	}

	setID := int64(2)
	rows, err := a.Results(&setID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(rows) != 1 || rows[0].SetName != "Chemistry" || rows[0].Passed {
		t.Errorf("unexpected scoped rows %+v", rows)
	}
}
