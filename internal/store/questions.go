package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

const questionColumns = `id, question_set_id, text, option_a, option_b, option_c, option_d, correct, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (model.Question, error) {
	var q model.Question
	err := r.Scan(&q.ID, &q.SetID, &q.Text, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.Correct, &q.CreatedAt)
	return q, err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertQuestion(ex execer, q model.Question) (int64, error) {
	res, err := ex.Exec(
		`INSERT INTO questions (question_set_id, text, option_a, option_b, option_c, option_d, correct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.SetID, q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.Correct, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	return insertQuestion(s.db, q)
}

// InsertQuestions stores a batch of questions in one transaction.
func (s *Store) InsertQuestions(qs []model.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range qs {
		if _, err := insertQuestion(tx, q); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListQuestionsBySet returns the questions of a set ordered by ID.
func (s *Store) ListQuestionsBySet(setID int64) ([]model.Question, error) {
	rows, err := s.db.Query(`SELECT `+questionColumns+` FROM questions WHERE question_set_id = ? ORDER BY id`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	return q, notFound(err)
}

// UpdateQuestion edits a question in place. Exams keep their frozen copies.
func (s *Store) UpdateQuestion(q model.Question) error {
	res, err := s.db.Exec(
		`UPDATE questions SET text = ?, option_a = ?, option_b = ?, option_c = ?, option_d = ?, correct = ?
		 WHERE id = ?`,
		q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.Correct, q.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(id int64) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// QuestionCount returns the number of questions in a set, or in all sets when setID is nil.
func (s *Store) QuestionCount(setID *int64) (int, error) {
	var count int
	var err error
	if setID == nil {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM questions WHERE question_set_id = ?`, *setID).Scan(&count)
	}
	return count, err
}
