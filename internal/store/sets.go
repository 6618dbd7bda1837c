package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examdesk/internal/model"
)

// CreateSet inserts a question set with a fresh share token.
func (s *Store) CreateSet(name string) (model.QuestionSet, error) {
	qs := model.QuestionSet{
		Token:     uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.Exec(
		`INSERT INTO question_sets (token, name, created_at) VALUES (?, ?, ?)`,
		qs.Token, qs.Name, qs.CreatedAt,
	)
	if err != nil {
		return qs, fmt.Errorf("insert question set: %w", err)
	}
	qs.ID, err = res.LastInsertId()
	if err != nil {
		return qs, err
	}
	slog.Info("created question set", "id", qs.ID, "name", qs.Name)
	return qs, nil
}

// GetSet returns a question set by ID.
func (s *Store) GetSet(id int64) (model.QuestionSet, error) {
	var qs model.QuestionSet
	err := s.db.QueryRow(
		`SELECT id, token, name, created_at FROM question_sets WHERE id = ?`, id,
	).Scan(&qs.ID, &qs.Token, &qs.Name, &qs.CreatedAt)
	return qs, notFound(err)
}

// GetSetByToken returns a question set by its share token.
func (s *Store) GetSetByToken(token string) (model.QuestionSet, error) {
	var qs model.QuestionSet
	err := s.db.QueryRow(
		`SELECT id, token, name, created_at FROM question_sets WHERE token = ?`, token,
	).Scan(&qs.ID, &qs.Token, &qs.Name, &qs.CreatedAt)
	return qs, notFound(err)
}

// GetSetByName returns the most recent question set with the given name.
func (s *Store) GetSetByName(name string) (model.QuestionSet, error) {
	var qs model.QuestionSet
	err := s.db.QueryRow(
		`SELECT id, token, name, created_at FROM question_sets WHERE name = ? ORDER BY id DESC LIMIT 1`, name,
	).Scan(&qs.ID, &qs.Token, &qs.Name, &qs.CreatedAt)
	return qs, notFound(err)
}

// ListSets returns all sets with question and finished-exam counts.
func (s *Store) ListSets(order model.SetOrder) ([]model.SetSummary, error) {
	orderBy := `qs.name COLLATE NOCASE, qs.id`
	if order == model.SetOrderRecency {
		orderBy = `qs.created_at DESC, qs.id DESC`
	}
	rows, err := s.db.Query(`
		SELECT qs.id, qs.token, qs.name, qs.created_at,
			(SELECT COUNT(*) FROM questions q WHERE q.question_set_id = qs.id),
			(SELECT COUNT(*) FROM exams e WHERE e.question_set_id = qs.id AND e.finished_at IS NOT NULL)
		FROM question_sets qs
		ORDER BY ` + orderBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []model.SetSummary
	for rows.Next() {
		var ss model.SetSummary
		if err := rows.Scan(&ss.ID, &ss.Token, &ss.Name, &ss.CreatedAt, &ss.QuestionCount, &ss.FinishedCount); err != nil {
			return nil, err
		}
		sets = append(sets, ss)
	}
	return sets, rows.Err()
}

// RenameSet changes the display name of a set. The token never changes.
func (s *Store) RenameSet(id int64, name string) error {
	res, err := s.db.Exec(`UPDATE question_sets SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSet removes a set together with its questions and exam history.
func (s *Store) DeleteSet(id int64) error {
	res, err := s.db.Exec(`DELETE FROM question_sets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	slog.Info("deleted question set", "id", id)
	return nil
}
