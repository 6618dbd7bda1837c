package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pavelanni/examdesk/internal/csvio"
	"github.com/pavelanni/examdesk/internal/handler/views"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
)

const maxUploadSize = 10 << 20

// flashMessages whitelists the message ids accepted in the ?flash= query.
var flashMessages = map[string]bool{
	"SetCreated":      true,
	"SetDeleted":      true,
	"SetSaved":        true,
	"QuestionAdded":   true,
	"QuestionUpdated": true,
	"QuestionDeleted": true,
	"ErrValidation":   true,
}

func (h *Handler) flash(r *http.Request) string {
	id := r.URL.Query().Get("flash")
	if !flashMessages[id] {
		return ""
	}
	return appI18n.T(r.Context(), id)
}

func (h *Handler) setPath(setID int64, flash string) string {
	p := h.path(fmt.Sprintf("/teacher/sets/%d", setID))
	if flash != "" {
		p += "?flash=" + flash
	}
	return p
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.report.Dashboard(nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sets, err := h.store.ListSets(model.SetOrderName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total, err := h.store.QuestionCount(nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.DashboardPage(views.DashboardData{
		Flash:          h.flash(r),
		Stats:          stats,
		Sets:           sets,
		TotalQuestions: total,
	}))
}

func (h *Handler) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	in, err := model.SetInput{Name: r.FormValue("name")}.Validate()
	if err != nil {
		http.Redirect(w, r, h.path("/teacher?flash=ErrValidation"), http.StatusSeeOther)
		return
	}
	set, err := h.store.CreateSet(in.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.setPath(set.ID, "SetCreated"), http.StatusSeeOther)
}

// renderSet shows the set page with an optional message and status.
func (h *Handler) renderSet(w http.ResponseWriter, r *http.Request, setID int64, status int, flash string) {
	set, err := h.store.GetSet(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	questions, err := h.store.ListQuestionsBySet(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.report.Dashboard(&setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, status, views.SetPage(views.SetData{
		Flash:        flash,
		Set:          set,
		Questions:    questions,
		Stats:        stats,
		DraftEnabled: h.llm != nil,
	}))
}

func (h *Handler) handleSetPage(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderSet(w, r, setID, http.StatusOK, h.flash(r))
}

func (h *Handler) handleRenameSet(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := model.SetInput{Name: r.FormValue("name")}.Validate()
	if err != nil {
		http.Redirect(w, r, h.setPath(setID, "ErrValidation"), http.StatusSeeOther)
		return
	}
	if err := h.store.RenameSet(setID, in.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.setPath(setID, "SetSaved"), http.StatusSeeOther)
}

func (h *Handler) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteSet(setID); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/teacher?flash=SetDeleted"), http.StatusSeeOther)
}

func questionInputFromForm(r *http.Request) model.QuestionInput {
	return model.QuestionInput{
		Text:    r.FormValue("text"),
		OptionA: r.FormValue("option_a"),
		OptionB: r.FormValue("option_b"),
		OptionC: r.FormValue("option_c"),
		OptionD: r.FormValue("option_d"),
		Correct: r.FormValue("correct"),
	}
}

func (h *Handler) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := questionInputFromForm(r).Question(setID)
	if err != nil {
		h.renderSet(w, r, setID, http.StatusBadRequest, appI18n.Err(r.Context(), err))
		return
	}
	if _, err := h.store.GetSet(setID); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.store.InsertQuestion(q); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.setPath(setID, "QuestionAdded"), http.StatusSeeOther)
}

func (h *Handler) handleEditQuestionPage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "questionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.EditQuestionPage(q, ""))
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "questionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	existing, err := h.store.GetQuestion(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := questionInputFromForm(r)
	q, err := in.Question(existing.SetID)
	if err != nil {
		// Re-render with what the teacher typed.
		in = in.Normalize()
		existing.Text = in.Text
		existing.Options = [4]string{in.OptionA, in.OptionB, in.OptionC, in.OptionD}
		existing.Correct = model.Option(in.Correct)
		h.render(w, r, http.StatusBadRequest, views.EditQuestionPage(existing, appI18n.Err(r.Context(), err)))
		return
	}
	q.ID = id
	if err := h.store.UpdateQuestion(q); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.setPath(existing.SetID, "QuestionUpdated"), http.StatusSeeOther)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "questionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteQuestion(id); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.setPath(q.SetID, "QuestionDeleted"), http.StatusSeeOther)
}

func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.store.GetSet(setID); err != nil {
		h.fail(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderSet(w, r, setID, http.StatusBadRequest, appI18n.T(r.Context(), "CSVRequired"))
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		h.renderSet(w, r, setID, http.StatusBadRequest, appI18n.T(r.Context(), "CSVRequired"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil || len(data) > maxUploadSize {
		h.renderSet(w, r, setID, http.StatusBadRequest, appI18n.T(r.Context(), "CSVRequired"))
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	stored, err := h.store.GetImportedFileHash(setID, header.Filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stored == hash {
		h.renderSet(w, r, setID, http.StatusOK, appI18n.T(r.Context(), "ImportDuplicate"))
		return
	}

	rep, err := csvio.Import(bytes.NewReader(data), setID, h.store)
	if err != nil {
		h.renderSet(w, r, setID, http.StatusBadRequest, appI18n.Err(r.Context(), err))
		return
	}
	if err := h.store.SetImportedFileHash(setID, header.Filename, hash); err != nil {
		slog.Error("failed to record import", "set_id", setID, "file", header.Filename, "error", err)
	}

	msg := appI18n.Tp(r.Context(), "QuestionsImported", rep.Imported)
	if rep.Skipped > 0 {
		msg += " " + appI18n.Tp(r.Context(), "RowsSkipped", rep.Skipped)
	}
	h.renderSet(w, r, setID, http.StatusOK, msg)
}

func (h *Handler) handleExportQuestions(w http.ResponseWriter, r *http.Request) {
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.store.GetSet(setID); err != nil {
		h.fail(w, r, err)
		return
	}
	questions, err := h.store.ListQuestionsBySet(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="questions-%d.csv"`, setID))
	if err := csvio.WriteQuestions(w, questions); err != nil {
		slog.Error("failed to write questions CSV", "set_id", setID, "error", err)
	}
}

func (h *Handler) handleDraftQuestions(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		h.fail(w, r, model.ErrNotFound)
		return
	}
	setID, err := idParam(r, "setID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.store.GetSet(setID); err != nil {
		h.fail(w, r, err)
		return
	}
	existing, err := h.store.ListQuestionsBySet(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	texts := make([]string, 0, len(existing))
	for _, q := range existing {
		texts = append(texts, q.Text)
	}

	n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("count")))
	if err != nil {
		n = 0
	}
	drafts, err := h.llm.DraftQuestions(r.Context(), r.FormValue("topic"), n, texts)
	if err != nil {
		status := http.StatusBadGateway
		if model.IsValidation(err) {
			status = http.StatusBadRequest
		} else {
			slog.Error("question drafting failed", "set_id", setID, "error", err)
		}
		h.renderSet(w, r, setID, status, appI18n.Err(r.Context(), err))
		return
	}

	questions := make([]model.Question, 0, len(drafts))
	for _, d := range drafts {
		q, err := d.Question(setID)
		if err != nil {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) > 0 {
		if err := h.store.InsertQuestions(questions); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	slog.Info("drafted questions", "set_id", setID, "requested", n, "added", len(questions))
	h.renderSet(w, r, setID, http.StatusOK, appI18n.Tp(r.Context(), "DraftsAdded", len(questions)))
}

// setFilter parses the optional ?set= query parameter.
func setFilter(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("set")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, &model.ValidationError{Fields: []string{"set"}, Reason: "invalid set id"}
	}
	return &id, nil
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	setID, err := setFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.report.Results(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.ResultsPage(rows, setID))
}

func (h *Handler) handleExportResults(w http.ResponseWriter, r *http.Request) {
	setID, err := setFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.report.Results(setID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	if err := csvio.WriteResults(w, rows); err != nil {
		slog.Error("failed to write results CSV", "error", err)
	}
}

func (h *Handler) handleResultDetail(w http.ResponseWriter, r *http.Request) {
	examID, err := idParam(r, "examID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ex, err := h.engine.Load(examID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ex.Finished() {
		h.fail(w, r, model.ErrNotFound)
		return
	}
	set, err := h.store.GetSet(ex.SetID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.ResultPage(views.ResultData{Exam: ex, SetName: set.Name, ShowKey: true}))
}
