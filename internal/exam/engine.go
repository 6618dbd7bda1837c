// Package exam implements the exam lifecycle: creating randomized attempts,
// resolving active/expired/finished state, autosaving answers and grading
// each attempt exactly once.
//
// Expiry is detected lazily. Every read path checks the deadline and
// finalizes an expired exam before returning it; there is no background sweep.
package exam

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

// Repository is the storage the engine needs. *store.Store implements it.
type Repository interface {
	ListQuestionsBySet(setID int64) ([]model.Question, error)
	CreateExam(e model.Exam) (int64, error)
	GetExam(id int64) (model.Exam, error)
	FindExam(setID int64, email, index string, finished bool) (*model.Exam, error)
	UpdateAnswers(id int64, answers map[string]model.Option) (bool, error)
	FinalizeExam(id int64, finishedAt time.Time, r model.Result) (bool, error)
}

// Engine runs exam sessions against a Repository. It is safe for concurrent use.
type Engine struct {
	repo Repository
	cfg  model.ExamConfig
	now  func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithRand replaces the random source used for sampling and shuffling.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// New creates an Engine. The configuration is copied and never changes afterwards.
func New(repo Repository, cfg model.ExamConfig, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's exam parameters.
func (e *Engine) Config() model.ExamConfig {
	return e.cfg
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Resolution is the outcome of a student login.
type Resolution struct {
	Exam model.Exam
	// Finished means the student already completed this set and may not retake it.
	Finished bool
	// Resumed means an in-progress exam was returned instead of a new one.
	Resumed bool
}

// ResolveOrCreate returns the student's finished exam, resumes the active
// one, or creates a new randomized exam. An active exam found past its
// deadline is graded first and a new one is created in its place.
func (e *Engine) ResolveOrCreate(setID int64, email, index string) (Resolution, error) {
	finished, err := e.repo.FindExam(setID, email, index, true)
	if err != nil {
		return Resolution{}, fmt.Errorf("find finished exam: %w", err)
	}
	if finished != nil {
		return Resolution{Exam: *finished, Finished: true}, nil
	}

	active, err := e.repo.FindExam(setID, email, index, false)
	if err != nil {
		return Resolution{}, fmt.Errorf("find active exam: %w", err)
	}
	if active != nil {
		ex, expired, err := e.CheckAndFinalize(*active, e.now())
		if err != nil {
			return Resolution{}, err
		}
		if !expired {
			return Resolution{Exam: ex, Resumed: true}, nil
		}
	}

	ex, err := e.create(setID, email, index)
	if errors.Is(err, model.ErrActiveExists) {
		// A concurrent request created the exam first; resume that one.
		active, ferr := e.repo.FindExam(setID, email, index, false)
		if ferr != nil {
			return Resolution{}, fmt.Errorf("find active exam: %w", ferr)
		}
		if active == nil {
			return Resolution{}, err
		}
		return Resolution{Exam: *active, Resumed: true}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Exam: ex}, nil
}

func (e *Engine) create(setID int64, email, index string) (model.Exam, error) {
	bank, err := e.repo.ListQuestionsBySet(setID)
	if err != nil {
		return model.Exam{}, fmt.Errorf("list questions: %w", err)
	}
	count := min(e.cfg.QuestionCount, len(bank))
	if count == 0 {
		return model.Exam{}, model.ErrEmptyBank
	}

	e.mu.Lock()
	snap := Snapshot(e.rng, bank, count)
	e.mu.Unlock()

	ex := model.Exam{
		SetID:     setID,
		Email:     email,
		Index:     index,
		Questions: snap,
		Answers:   map[string]model.Option{},
		StartedAt: e.now(),
	}
	ex.ID, err = e.repo.CreateExam(ex)
	if err != nil {
		return model.Exam{}, err
	}
	slog.Info("created exam", "exam_id", ex.ID, "set_id", setID, "email", email, "questions", len(snap), "bank", len(bank))
	return ex, nil
}

// Expired reports whether an active exam is past its deadline at now.
func (e *Engine) Expired(ex model.Exam, now time.Time) bool {
	return !ex.Finished() && now.After(ex.Deadline(e.cfg.Duration))
}

// Remaining returns the time left before the deadline, clamped at zero.
func (e *Engine) Remaining(ex model.Exam, now time.Time) time.Duration {
	d := ex.Deadline(e.cfg.Duration).Sub(now)
	if d < 0 || ex.Finished() {
		return 0
	}
	return d
}

// RemainingSeconds is Remaining truncated to whole seconds for display.
func (e *Engine) RemainingSeconds(ex model.Exam, now time.Time) int {
	return int(e.Remaining(ex, now) / time.Second)
}

// CheckAndFinalize grades ex at now if it is active and past its deadline.
// It reports whether this call observed the expiry.
func (e *Engine) CheckAndFinalize(ex model.Exam, now time.Time) (model.Exam, bool, error) {
	if !e.Expired(ex, now) {
		return ex, false, nil
	}
	slog.Info("exam expired, grading", "exam_id", ex.ID, "started_at", ex.StartedAt, "now", now)
	graded, err := e.finalize(ex, now)
	if err != nil {
		return ex, false, err
	}
	return graded, true, nil
}

// Load reads an exam and finalizes it first if it has expired.
func (e *Engine) Load(examID int64) (model.Exam, error) {
	ex, err := e.repo.GetExam(examID)
	if err != nil {
		return model.Exam{}, err
	}
	ex, _, err = e.CheckAndFinalize(ex, e.now())
	return ex, err
}

// SaveAnswers replaces the exam's answer map with submitted, keeping only
// keys from the frozen snapshot with non-empty values. It fails with
// model.ErrAlreadyFinished once the exam is terminal, returning the
// finished record.
func (e *Engine) SaveAnswers(examID int64, submitted map[string]string) (model.Exam, error) {
	ex, err := e.Load(examID)
	if err != nil {
		return model.Exam{}, err
	}
	if ex.Finished() {
		return ex, model.ErrAlreadyFinished
	}

	answers := FilterAnswers(ex.Questions, submitted)
	ok, err := e.repo.UpdateAnswers(ex.ID, answers)
	if err != nil {
		return ex, fmt.Errorf("update answers: %w", err)
	}
	if !ok {
		if ex, err = e.repo.GetExam(examID); err != nil {
			return model.Exam{}, err
		}
		return ex, model.ErrAlreadyFinished
	}
	ex.Answers = answers
	return ex, nil
}

// Submit stores the final answers and grades the exam.
func (e *Engine) Submit(examID int64, submitted map[string]string) (model.Exam, error) {
	ex, err := e.SaveAnswers(examID, submitted)
	if err != nil {
		return ex, err
	}
	ex, err = e.finalize(ex, e.now())
	if err != nil {
		return ex, err
	}
	slog.Info("exam submitted", "exam_id", ex.ID, "answered", len(ex.Answers))
	return ex, nil
}

// finalize grades the snapshot and writes the terminal fields once. If the
// exam was finalized concurrently the stored result wins.
func (e *Engine) finalize(ex model.Exam, at time.Time) (model.Exam, error) {
	r := Grade(ex.Questions, ex.Answers, e.cfg.PassThreshold)
	if _, err := e.repo.FinalizeExam(ex.ID, at, r); err != nil {
		return ex, fmt.Errorf("finalize exam %d: %w", ex.ID, err)
	}
	stored, err := e.repo.GetExam(ex.ID)
	if err != nil {
		return ex, fmt.Errorf("reload exam %d: %w", ex.ID, err)
	}
	return stored, nil
}
