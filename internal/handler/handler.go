package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examdesk/internal/exam"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/llm"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/report"
	"github.com/pavelanni/examdesk/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	engine *exam.Engine
	report *report.Aggregator
	llm    *llm.Client // nil disables question drafting
	config model.ServerConfig
}

// New creates a new Handler. l may be nil.
func New(s *store.Store, e *exam.Engine, l *llm.Client, cfg model.ServerConfig) (*Handler, error) {
	if len(cfg.TeacherHash) == 0 {
		return nil, fmt.Errorf("teacher password hash is required")
	}
	return &Handler{
		store:  s,
		engine: e,
		report: report.New(s),
		llm:    l,
		config: cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	// Student flow.
	r.Get("/", h.handleIndex)
	r.Post("/login", h.handleStudentLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireStudent)
		r.Get("/exam", h.handleExamPage)
		r.Post("/exam/save", h.handleSave)
		r.Post("/exam/submit", h.handleSubmit)
		r.Get("/result/{examID}", h.handleResult)
	})

	// Teacher flow.
	r.Get("/teacher/login", h.handleTeacherLoginPage)
	r.Post("/teacher/login", h.handleTeacherLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireTeacher)
		r.Post("/teacher/logout", h.handleTeacherLogout)
		r.Get("/teacher", h.handleDashboard)
		r.Post("/teacher/sets", h.handleCreateSet)
		r.Get("/teacher/sets/{setID}", h.handleSetPage)
		r.Post("/teacher/sets/{setID}/rename", h.handleRenameSet)
		r.Post("/teacher/sets/{setID}/delete", h.handleDeleteSet)
		r.Post("/teacher/sets/{setID}/questions", h.handleAddQuestion)
		r.Post("/teacher/sets/{setID}/import", h.handleImportQuestions)
		r.Get("/teacher/sets/{setID}/questions.csv", h.handleExportQuestions)
		r.Post("/teacher/sets/{setID}/draft", h.handleDraftQuestions)
		r.Get("/teacher/questions/{questionID}/edit", h.handleEditQuestionPage)
		r.Post("/teacher/questions/{questionID}/edit", h.handleUpdateQuestion)
		r.Post("/teacher/questions/{questionID}/delete", h.handleDeleteQuestion)
		r.Get("/teacher/results", h.handleResults)
		r.Get("/teacher/results.csv", h.handleExportResults)
		r.Get("/teacher/results/{examID}", h.handleResultDetail)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes p with the configured base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

// fail maps a domain error to an HTTP status and a translated message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case model.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyFinished), errors.Is(err, model.ErrEmptyBank):
		status = http.StatusConflict
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	http.Error(w, appI18n.Err(r.Context(), err), status)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.ErrNotFound
	}
	return id, nil
}
