package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavelanni/examdesk/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS question_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_set_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct TEXT NOT NULL CHECK (correct IN ('a', 'b', 'c', 'd')),
		created_at DATETIME NOT NULL,
		FOREIGN KEY (question_set_id) REFERENCES question_sets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS ix_questions_set ON questions(question_set_id);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_set_id INTEGER NOT NULL,
		student_email TEXT NOT NULL,
		student_index TEXT NOT NULL,
		questions_data TEXT NOT NULL,
		answers_data TEXT NOT NULL DEFAULT '{}',
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		score INTEGER,
		total INTEGER,
		passed BOOLEAN,
		FOREIGN KEY (question_set_id) REFERENCES question_sets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS ix_exams_student ON exams(question_set_id, student_email, student_index);
	CREATE INDEX IF NOT EXISTS ix_exams_finished ON exams(finished_at);

	-- At most one active attempt per student and set.
	CREATE UNIQUE INDEX IF NOT EXISTS ux_exams_active
		ON exams(question_set_id, student_email, student_index)
		WHERE finished_at IS NULL;

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		exam_id INTEGER,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// notFound maps sql.ErrNoRows to model.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// requireRow returns model.ErrNotFound when a statement touched no rows.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
