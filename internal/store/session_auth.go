package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

const (
	teacherSessionTTL = 12 * time.Hour
	studentSessionTTL = 24 * time.Hour
)

// CreateTeacherSession creates a session token granting teacher access.
func (s *Store) CreateTeacherSession() (string, error) {
	return s.createAuthSession(model.SessionTeacher, nil, "", teacherSessionTTL)
}

// CreateStudentSession creates a session token bound to one exam and student email.
func (s *Store) CreateStudentSession(examID int64, email string) (string, error) {
	return s.createAuthSession(model.SessionStudent, &examID, email, studentSessionTTL)
}

func (s *Store) createAuthSession(kind model.SessionKind, examID *int64, email string, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, kind, exam_id, email, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token, kind, examID, email, now, now.Add(ttl),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the session for the given token, or nil if not found/expired.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, kind, exam_id, email, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.Kind, &sess.ExamID, &sess.Email, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired sessions.
func (s *Store) CleanupExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now().UTC())
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
