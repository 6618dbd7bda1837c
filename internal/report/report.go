// Package report computes read-side summaries over finished exams.
package report

import (
	"fmt"
	"math"

	"github.com/pavelanni/examdesk/internal/model"
)

// TimeLayout is the human-readable date-time format used in result exports.
const TimeLayout = "2006-01-02 15:04"

// Source is the storage the aggregator reads from. *store.Store implements it.
type Source interface {
	ListFinishedExams(setID *int64) ([]model.Exam, error)
	SetNames() (map[int64]string, error)
}

// Aggregator answers dashboard and export queries.
type Aggregator struct {
	src Source
}

// New creates an Aggregator.
func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Dashboard summarizes finished exams, optionally for one set.
func (a *Aggregator) Dashboard(setID *int64) (model.Stats, error) {
	exams, err := a.src.ListFinishedExams(setID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("list finished exams: %w", err)
	}
	return Summarize(exams), nil
}

// Results returns one row per finished exam, newest first.
func (a *Aggregator) Results(setID *int64) ([]model.ResultRow, error) {
	exams, err := a.src.ListFinishedExams(setID)
	if err != nil {
		return nil, fmt.Errorf("list finished exams: %w", err)
	}
	names, err := a.src.SetNames()
	if err != nil {
		return nil, fmt.Errorf("set names: %w", err)
	}
	return Rows(exams, names), nil
}

// Summarize counts passed and failed exams and averages the raw score.
// Exams without a finish timestamp are ignored.
func Summarize(exams []model.Exam) model.Stats {
	var st model.Stats
	var sum int
	for _, e := range exams {
		if !e.Finished() {
			continue
		}
		st.Finished++
		if e.Passed != nil && *e.Passed {
			st.Passed++
		} else {
			st.Failed++
		}
		if e.Score != nil {
			sum += *e.Score
		}
	}
	if st.Finished > 0 {
		avg := float64(sum) / float64(st.Finished)
		st.AverageScore = &avg
	}
	return st
}

// Percentage returns score/total as a percentage rounded to one decimal, or 0 when total is 0.
func Percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*1000) / 10
}

// FormatPercentage renders a percentage the way exports show it, e.g. "83.3%".
func FormatPercentage(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// PassLabel renders the pass flag as an affirmative or negative token.
func PassLabel(passed bool) string {
	if passed {
		return "YES"
	}
	return "NO"
}

// Rows flattens finished exams into result rows.
func Rows(exams []model.Exam, setNames map[int64]string) []model.ResultRow {
	rows := make([]model.ResultRow, 0, len(exams))
	for _, e := range exams {
		if !e.Finished() {
			continue
		}
		r := model.ResultRow{
			ExamID:     e.ID,
			SetName:    setNames[e.SetID],
			Email:      e.Email,
			Index:      e.Index,
			StartedAt:  e.StartedAt,
			FinishedAt: *e.FinishedAt,
		}
		if e.Score != nil {
			r.Score = *e.Score
		}
		if e.Total != nil {
			r.Total = *e.Total
		}
		if e.Passed != nil {
			r.Passed = *e.Passed
		}
		r.Percentage = Percentage(r.Score, r.Total)
		rows = append(rows, r)
	}
	return rows
}
