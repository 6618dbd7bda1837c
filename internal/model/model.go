package model

import (
	"context"
	"fmt"
	"time"
)

// Option designates one of the four fixed answer slots.
type Option string

const (
	OptionA Option = "a"
	OptionB Option = "b"
	OptionC Option = "c"
	OptionD Option = "d"
)

// Options lists the answer slots in display order.
var Options = [4]Option{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether o names one of the four slots.
func (o Option) Valid() bool {
	return o.Index() >= 0
}

// Index returns the zero-based slot position, or -1 for an invalid option.
func (o Option) Index() int {
	for i, opt := range Options {
		if opt == o {
			return i
		}
	}
	return -1
}

// QuestionSet is a named, shareable collection of questions forming one exam definition.
type QuestionSet struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SetSummary is a question set with counters for listing pages.
type SetSummary struct {
	QuestionSet
	QuestionCount int `json:"question_count"`
	FinishedCount int `json:"finished_count"`
}

// SetOrder selects the ordering of ListSets.
type SetOrder string

const (
	SetOrderName    SetOrder = "name"
	SetOrderRecency SetOrder = "recency"
)

// Question is a 4-option single-choice question owned by a set.
type Question struct {
	ID        int64     `json:"id"`
	SetID     int64     `json:"set_id"`
	Text      string    `json:"text"`
	Options   [4]string `json:"options"`
	Correct   Option    `json:"correct"`
	CreatedAt time.Time `json:"created_at"`
}

// CorrectText returns the text of the correct option.
func (q Question) CorrectText() string {
	i := q.Correct.Index()
	if i < 0 {
		return ""
	}
	return q.Options[i]
}

// SnapshotQuestion is a question frozen into an exam after sampling and
// option shuffling. Correct refers to the shuffled slot order.
type SnapshotQuestion struct {
	ID      int64     `json:"id"`
	Text    string    `json:"text"`
	Options [4]string `json:"options"`
	Correct Option    `json:"correct"`
}

// Key returns the answer-map key for the question.
func (q SnapshotQuestion) Key() string {
	return fmt.Sprint(q.ID)
}

// Exam is one student's timed attempt at a question set.
type Exam struct {
	ID         int64              `json:"id"`
	SetID      int64              `json:"set_id"`
	Email      string             `json:"email"`
	Index      string             `json:"index"`
	Questions  []SnapshotQuestion `json:"questions"`
	Answers    map[string]Option  `json:"answers"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Score      *int               `json:"score,omitempty"`
	Total      *int               `json:"total,omitempty"`
	Passed     *bool              `json:"passed,omitempty"`
}

// Finished reports whether the exam has reached its terminal state.
func (e Exam) Finished() bool {
	return e.FinishedAt != nil
}

// Deadline returns the moment the exam stops accepting answers.
func (e Exam) Deadline(d time.Duration) time.Time {
	return e.StartedAt.Add(d)
}

// Result is the outcome of grading an exam.
type Result struct {
	Score  int  `json:"score"`
	Total  int  `json:"total"`
	Passed bool `json:"passed"`
}

// ExamConfig holds the immutable exam parameters passed to the engine.
type ExamConfig struct {
	Duration      time.Duration
	QuestionCount int
	PassThreshold float64
}

// DefaultExamConfig returns the stock exam parameters: 20 minutes, 20 questions, 50% to pass.
func DefaultExamConfig() ExamConfig {
	return ExamConfig{
		Duration:      20 * time.Minute,
		QuestionCount: 20,
		PassThreshold: 0.5,
	}
}

// Validate checks that the configuration can drive an exam.
func (c ExamConfig) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("exam duration must be positive, got %s", c.Duration)
	}
	if c.QuestionCount <= 0 {
		return fmt.Errorf("exam question count must be positive, got %d", c.QuestionCount)
	}
	if c.PassThreshold < 0 || c.PassThreshold > 1 {
		return fmt.Errorf("pass threshold must be within [0, 1], got %g", c.PassThreshold)
	}
	return nil
}

// ServerConfig holds HTTP-level settings set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	TeacherHash   []byte // bcrypt hash of the shared teacher password
}

// SessionKind distinguishes teacher and student browser sessions.
type SessionKind string

const (
	SessionTeacher SessionKind = "teacher"
	SessionStudent SessionKind = "student"
)

// AuthSession is an opaque browser session. Student sessions carry the
// current exam id and email; losing the token orphans the exam until it expires.
type AuthSession struct {
	ID        string
	Kind      SessionKind
	ExamID    *int64
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionCtxKey struct{}

// ContextWithSession stores the current session in the request context.
func ContextWithSession(ctx context.Context, s *AuthSession) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the session from context, or nil.
func SessionFromContext(ctx context.Context) *AuthSession {
	s, _ := ctx.Value(sessionCtxKey{}).(*AuthSession)
	return s
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
