package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

const examColumns = `id, question_set_id, student_email, student_index, questions_data, answers_data,
	started_at, finished_at, score, total, passed`

func scanExam(r rowScanner) (model.Exam, error) {
	var e model.Exam
	var questionsData, answersData string
	err := r.Scan(&e.ID, &e.SetID, &e.Email, &e.Index, &questionsData, &answersData,
		&e.StartedAt, &e.FinishedAt, &e.Score, &e.Total, &e.Passed)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(questionsData), &e.Questions); err != nil {
		return e, fmt.Errorf("decode questions of exam %d: %w", e.ID, err)
	}
	e.Answers = make(map[string]model.Option)
	if answersData != "" {
		if err := json.Unmarshal([]byte(answersData), &e.Answers); err != nil {
			return e, fmt.Errorf("decode answers of exam %d: %w", e.ID, err)
		}
	}
	return e, nil
}

// CreateExam persists a new active exam with its frozen question snapshot.
// It returns model.ErrActiveExists if the student already holds an active
// exam in the set.
func (s *Store) CreateExam(e model.Exam) (int64, error) {
	questionsData, err := json.Marshal(e.Questions)
	if err != nil {
		return 0, fmt.Errorf("encode questions: %w", err)
	}
	answers := e.Answers
	if answers == nil {
		answers = map[string]model.Option{}
	}
	answersData, err := json.Marshal(answers)
	if err != nil {
		return 0, fmt.Errorf("encode answers: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO exams (question_set_id, student_email, student_index, questions_data, answers_data, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SetID, e.Email, e.Index, string(questionsData), string(answersData), e.StartedAt,
	)
	if isUniqueViolation(err) {
		return 0, model.ErrActiveExists
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(`SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	return e, notFound(err)
}

// FindExam returns the student's active exam in a set, or the most recently
// finished one when finished is true. It returns nil when there is none.
func (s *Store) FindExam(setID int64, email, index string, finished bool) (*model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams
		WHERE question_set_id = ? AND student_email = ? AND student_index = ? AND finished_at IS NULL`
	if finished {
		query = `SELECT ` + examColumns + ` FROM exams
		WHERE question_set_id = ? AND student_email = ? AND student_index = ? AND finished_at IS NOT NULL
		ORDER BY finished_at DESC, id DESC LIMIT 1`
	}
	e, err := scanExam(s.db.QueryRow(query, setID, email, index))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateAnswers overwrites the answer map of an active exam. It reports
// false when the exam is already finished or does not exist.
func (s *Store) UpdateAnswers(id int64, answers map[string]model.Option) (bool, error) {
	data, err := json.Marshal(answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE exams SET answers_data = ? WHERE id = ? AND finished_at IS NULL`,
		string(data), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FinalizeExam writes the terminal fields of an exam in one statement. It
// reports false when the exam was already finished, leaving the stored
// result untouched.
func (s *Store) FinalizeExam(id int64, finishedAt time.Time, r model.Result) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE exams SET finished_at = ?, score = ?, total = ?, passed = ?
		 WHERE id = ? AND finished_at IS NULL`,
		finishedAt, r.Score, r.Total, r.Passed, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		slog.Info("finalized exam", "exam_id", id, "score", r.Score, "total", r.Total, "passed", r.Passed)
	}
	return n > 0, nil
}

// ListFinishedExams returns finished exams, newest first, optionally scoped to one set.
func (s *Store) ListFinishedExams(setID *int64) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE finished_at IS NOT NULL`
	var args []any
	if setID != nil {
		query += ` AND question_set_id = ?`
		args = append(args, *setID)
	}
	query += ` ORDER BY finished_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// SetNames maps set IDs to display names for reporting.
func (s *Store) SetNames() (map[int64]string, error) {
	rows, err := s.db.Query(`SELECT id, name FROM question_sets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
