package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pavelanni/examdesk/internal/handler/views"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
)

// answerFieldPrefix prefixes exam form fields: q_<question id> = a|b|c|d.
const answerFieldPrefix = "q_"

// answersFromForm extracts the question-id keyed answers from a posted form.
func answersFromForm(form url.Values) map[string]string {
	out := make(map[string]string)
	for k, vs := range form {
		id, ok := strings.CutPrefix(k, answerFieldPrefix)
		if !ok || id == "" || len(vs) == 0 {
			continue
		}
		out[id] = vs[len(vs)-1]
	}
	return out
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.LoginPage(views.LoginData{SetToken: r.URL.Query().Get("code")}))
}

func (h *Handler) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	form := views.LoginData{
		Email:    r.FormValue("email"),
		Index:    r.FormValue("index"),
		SetToken: r.FormValue("set_token"),
	}
	loginErr := func(status int, err error) {
		form.Flash = appI18n.Err(r.Context(), err)
		h.render(w, r, status, views.LoginPage(form))
	}

	in, err := model.StudentLogin{Email: form.Email, Index: form.Index, SetToken: form.SetToken}.Validate()
	if err != nil {
		loginErr(http.StatusBadRequest, err)
		return
	}
	set, err := h.store.GetSetByToken(in.SetToken)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			slog.Error("failed to look up set", "error", err)
		}
		loginErr(http.StatusNotFound, err)
		return
	}

	res, err := h.engine.ResolveOrCreate(set.ID, in.Email, in.Index)
	if err != nil {
		if errors.Is(err, model.ErrEmptyBank) {
			loginErr(http.StatusConflict, err)
			return
		}
		slog.Error("failed to resolve exam", "set_id", set.ID, "email", in.Email, "error", err)
		loginErr(http.StatusInternalServerError, err)
		return
	}

	token, err := h.store.CreateStudentSession(res.Exam.ID, in.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, studentCookieName, token)
	slog.Info("student logged in", "exam_id", res.Exam.ID, "email", in.Email,
		"resumed", res.Resumed, "finished", res.Finished)

	if res.Finished || res.Exam.Finished() {
		http.Redirect(w, r, h.resultPath(res.Exam.ID), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

func (h *Handler) resultPath(examID int64) string {
	return h.path(fmt.Sprintf("/result/%d", examID))
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	ex, err := h.engine.Load(*sess.ExamID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ex.Finished() {
		http.Redirect(w, r, h.resultPath(ex.ID), http.StatusSeeOther)
		return
	}
	set, err := h.store.GetSet(ex.SetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.ExamPage(views.ExamData{
		Exam:             ex,
		SetName:          set.Name,
		RemainingSeconds: h.engine.RemainingSeconds(ex, h.engine.Now()),
	}))
}

type saveResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}

// handleSave autosaves the answer map. ok=false tells the page the exam
// is no longer accepting answers and it should navigate to the result.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, saveResponse{OK: false})
		return
	}
	_, err := h.engine.SaveAnswers(*sess.ExamID, answersFromForm(r.PostForm))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, saveResponse{OK: true})
	case errors.Is(err, model.ErrAlreadyFinished):
		writeJSON(w, http.StatusOK, saveResponse{OK: false})
	default:
		slog.Error("autosave failed", "exam_id", *sess.ExamID, "error", err)
		writeJSON(w, http.StatusInternalServerError, saveResponse{OK: false})
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ex, err := h.engine.Submit(*sess.ExamID, answersFromForm(r.PostForm))
	if err != nil && !errors.Is(err, model.ErrAlreadyFinished) {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.resultPath(ex.ID), http.StatusSeeOther)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	examID, err := idParam(r, "examID")
	if err != nil || examID != *sess.ExamID {
		h.fail(w, r, model.ErrNotFound)
		return
	}
	ex, err := h.engine.Load(examID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ex.Finished() {
		http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
		return
	}
	set, err := h.store.GetSet(ex.SetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.ResultPage(views.ResultData{Exam: ex, SetName: set.Name}))
}
