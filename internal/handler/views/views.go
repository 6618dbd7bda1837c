// Package views holds the templ components for every HTML page.
package views

//go:generate templ generate

import (
	"context"
	"fmt"
	"time"

	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/report"
)

// LoginData feeds the student login page.
type LoginData struct {
	Flash    string
	Email    string
	Index    string
	SetToken string
}

// ExamData feeds the exam page.
type ExamData struct {
	Exam             model.Exam
	SetName          string
	RemainingSeconds int
}

// ResultData feeds the result page. ShowKey reveals correct answers (teacher view).
type ResultData struct {
	Exam    model.Exam
	SetName string
	ShowKey bool
	Flash   string
}

// DashboardData feeds the teacher dashboard.
type DashboardData struct {
	Flash          string
	Stats          model.Stats
	Sets           []model.SetSummary
	TotalQuestions int
}

// SetData feeds the question list page of one set.
type SetData struct {
	Flash        string
	Set          model.QuestionSet
	Questions    []model.Question
	Stats        model.Stats
	DraftEnabled bool
}

func t(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func tp(ctx context.Context, id string, n int) string { return appI18n.Tp(ctx, id, n) }

// pathTo prefixes p with the mount point of the server.
func pathTo(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func pathf(ctx context.Context, format string, args ...any) string {
	return pathTo(ctx, fmt.Sprintf(format, args...))
}

func csrfToken(ctx context.Context) string { return model.CSRFTokenFromContext(ctx) }

func pct(score, total int) string {
	return report.FormatPercentage(report.Percentage(score, total))
}

func when(ts time.Time) string { return ts.Local().Format(report.TimeLayout) }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func passed(e model.Exam) bool { return e.Passed != nil && *e.Passed }

func statusClass(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func statusText(ctx context.Context, ok bool) string {
	if ok {
		return t(ctx, "Passed")
	}
	return t(ctx, "Failed")
}

func scoreLine(ctx context.Context, e model.Exam) string {
	score, total := deref(e.Score), deref(e.Total)
	return appI18n.Td(ctx, "ScoreLine", map[string]any{
		"Score":      score,
		"Total":      total,
		"Percentage": pct(score, total),
	})
}

func averageScore(ctx context.Context, s model.Stats) string {
	if s.AverageScore == nil {
		return t(ctx, "NoData")
	}
	return fmt.Sprintf("%.1f", *s.AverageScore)
}

// optionLabel renders "b) text" for a slot of q, or an empty string for no answer.
func optionLabel(opts [4]string, o model.Option) string {
	i := o.Index()
	if i < 0 {
		return string(o)
	}
	return string(o) + ") " + opts[i]
}

func answerLabel(ctx context.Context, q model.SnapshotQuestion, ans model.Option) string {
	if ans == "" {
		return t(ctx, "NoAnswer")
	}
	return optionLabel(q.Options, ans)
}

func fieldName(q model.SnapshotQuestion) string { return "q_" + q.Key() }

func blankQuestion() model.Question { return model.Question{Correct: model.OptionA} }

func setIDValue(setID *int64) int64 {
	if setID == nil {
		return 0
	}
	return *setID
}
