package exam

import (
	"maps"
	"testing"

	"github.com/pavelanni/examdesk/internal/model"
)

func snapshotOf(correct ...model.Option) []model.SnapshotQuestion {
	qs := make([]model.SnapshotQuestion, len(correct))
	for i, c := range correct {
		qs[i] = model.SnapshotQuestion{ID: int64(i + 1), Options: [4]string{"w", "x", "y", "z"}, Correct: c}
	}
	return qs
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		questions []model.SnapshotQuestion
		answers   map[string]model.Option
		threshold float64
		want      model.Result
	}{
		{
			name:      "all correct",
			questions: snapshotOf("a", "b", "c"),
			answers:   map[string]model.Option{"1": "a", "2": "b", "3": "c"},
			threshold: 0.5,
			want:      model.Result{Score: 3, Total: 3, Passed: true},
		},
		{
			name:      "exactly at threshold passes",
			questions: snapshotOf("a", "b"),
			answers:   map[string]model.Option{"1": "a", "2": "c"},
			threshold: 0.5,
			want:      model.Result{Score: 1, Total: 2, Passed: true},
		},
		{
			name:      "below threshold fails",
			questions: snapshotOf("a", "b"),
			answers:   map[string]model.Option{"1": "d"},
			threshold: 0.5,
			want:      model.Result{Score: 0, Total: 2, Passed: false},
		},
		{
			name:      "three fifths at 0.6",
			questions: snapshotOf("a", "a", "a", "a", "a"),
			answers:   map[string]model.Option{"1": "a", "2": "a", "3": "a"},
			threshold: 0.6,
			want:      model.Result{Score: 3, Total: 5, Passed: true},
		},
		{
			name:      "empty exam never passes",
			questions: nil,
			answers:   map[string]model.Option{"1": "a"},
			threshold: 0,
			want:      model.Result{Score: 0, Total: 0, Passed: false},
		},
		{
			name:      "answers for unknown questions ignored",
			questions: snapshotOf("b"),
			answers:   map[string]model.Option{"99": "b"},
			threshold: 0.5,
			want:      model.Result{Score: 0, Total: 1, Passed: false},
		},
		{
			name:      "zero threshold passes with no correct answers",
			questions: snapshotOf("b"),
			answers:   nil,
			threshold: 0,
			want:      model.Result{Score: 0, Total: 1, Passed: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grade(tt.questions, tt.answers, tt.threshold)
			if got != tt.want {
				t.Errorf("Grade() = %+v, want %+v", got, tt.want)
			}
			if again := Grade(tt.questions, tt.answers, tt.threshold); again != got {
				t.Errorf("Grade() not repeatable: %+v then %+v", got, again)
			}
		})
	}
}

func TestFilterAnswers(t *testing.T) {
	qs := snapshotOf("a", "b", "c")
	got := FilterAnswers(qs, map[string]string{
		"1":  "b",
		"2":  "",
		"3":  " X ",
		"42": "a",
	})
	want := map[string]model.Option{"1": "b", "3": " X "}
	if !maps.Equal(got, want) {
		t.Errorf("FilterAnswers() = %v, want %v", got, want)
	}
}

func TestGradeIgnoresNonDesignatorAnswers(t *testing.T) {
	qs := snapshotOf("a", "b")
	answers := FilterAnswers(qs, map[string]string{"1": "A", "2": "b"})
	r := Grade(qs, answers, 0.5)
	if r.Score != 1 || r.Total != 2 {
		t.Errorf("Grade() = %+v, want score 1 of 2", r)
	}
	if answers["1"] != "A" {
		t.Errorf("stored answer = %q, want it kept as submitted", answers["1"])
	}
}
