package model

import "time"

// Stats summarizes finished exams for the teacher dashboard.
type Stats struct {
	Finished     int      `json:"finished"`
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	AverageScore *float64 `json:"average_score,omitempty"`
}

// ResultRow is one finished exam flattened for tables and CSV export.
type ResultRow struct {
	ExamID     int64     `json:"exam_id"`
	SetName    string    `json:"set_name"`
	Email      string    `json:"email"`
	Index      string    `json:"index"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ImportReport counts the outcome of a bulk question import.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
