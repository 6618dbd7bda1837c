package exam

import "github.com/pavelanni/examdesk/internal/model"

// Grade scores answers against the frozen snapshot. It is pure: the live
// question bank is never consulted.
func Grade(questions []model.SnapshotQuestion, answers map[string]model.Option, threshold float64) model.Result {
	var r model.Result
	for _, q := range questions {
		if a, ok := answers[q.Key()]; ok && a == q.Correct {
			r.Score++
		}
	}
	r.Total = len(questions)
	if r.Total > 0 {
		r.Passed = float64(r.Score)/float64(r.Total) >= threshold
	}
	return r
}

// FilterAnswers keeps the non-empty submitted values that belong to a
// snapshot question. Values are stored as submitted; only an exact option
// designator can score. Absent keys mean "not answered".
func FilterAnswers(questions []model.SnapshotQuestion, submitted map[string]string) map[string]model.Option {
	answers := make(map[string]model.Option, len(submitted))
	for _, q := range questions {
		if v := submitted[q.Key()]; v != "" {
			answers[q.Key()] = model.Option(v)
		}
	}
	return answers
}
