package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examdesk/internal/handler/views"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
)

const (
	teacherCookieName = "session"
	studentCookieName = "exam_session"
	csrfCookieName    = "csrf_token"
	csrfFieldName     = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// csrfMiddleware implements the double-submit cookie pattern. The token is
// issued once per browser and does not rotate on POST; autosave relies on it.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := r.Cookie(csrfCookieName)

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			token := ""
			if cookie != nil {
				token = cookie.Value
			}
			if token == "" {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					slog.Error("failed to generate CSRF token", "error", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     h.cookiePath(),
					HttpOnly: false,
					Secure:   h.config.SecureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(model.ContextWithCSRFToken(r.Context(), token)))
			return
		}

		if cookie == nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}
		formToken := r.FormValue(csrfFieldName)
		if formToken == "" {
			slog.Warn("CSRF form token missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}
		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch", "path", r.URL.Path)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithCSRFToken(r.Context(), cookie.Value)))
	})
}

// sessionFor resolves the cookie into a live session of the given kind, or nil.
func (h *Handler) sessionFor(r *http.Request, cookieName string, kind model.SessionKind) *model.AuthSession {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := h.store.GetAuthSession(cookie.Value)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if sess == nil || sess.Kind != kind {
		return nil
	}
	return sess
}

// requireTeacher checks for a valid teacher session cookie.
func (h *Handler) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.sessionFor(r, teacherCookieName, model.SessionTeacher)
		if sess == nil {
			http.Redirect(w, r, h.path("/teacher/login"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithSession(r.Context(), sess)))
	})
}

// requireStudent checks for a student session bound to an exam.
func (h *Handler) requireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.sessionFor(r, studentCookieName, model.SessionStudent)
		if sess == nil || sess.ExamID == nil {
			http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithSession(r.Context(), sess)))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, name, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) handleTeacherLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.sessionFor(r, teacherCookieName, model.SessionTeacher) != nil {
		http.Redirect(w, r, h.path("/teacher"), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, views.TeacherLoginPage(""))
}

func (h *Handler) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	password := r.FormValue("password")
	if err := bcrypt.CompareHashAndPassword(h.config.TeacherHash, []byte(password)); err != nil {
		slog.Warn("teacher login failed", "remote", r.RemoteAddr)
		h.render(w, r, http.StatusUnauthorized, views.TeacherLoginPage(appI18n.T(r.Context(), "LoginError")))
		return
	}

	token, err := h.store.CreateTeacherSession()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, teacherCookieName, token)
	slog.Info("teacher logged in", "remote", r.RemoteAddr)
	http.Redirect(w, r, h.path("/teacher"), http.StatusSeeOther)
}

func (h *Handler) handleTeacherLogout(w http.ResponseWriter, r *http.Request) {
	if sess := model.SessionFromContext(r.Context()); sess != nil {
		_ = h.store.DeleteAuthSession(sess.ID)
	}
	h.clearSessionCookie(w, teacherCookieName)
	http.Redirect(w, r, h.path("/teacher/login"), http.StatusSeeOther)
}
