package i18n

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/examdesk/internal/model"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "StartExam"); got != "Start exam" {
		t.Errorf("T(StartExam) = %q, want 'Start exam'", got)
	}
	if got := T(ctx, "LoginError"); got != "Incorrect password." {
		t.Errorf("T(LoginError) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "StartExam"); got != "Начать экзамен" {
		t.Errorf("T(StartExam) = %q, want 'Начать экзамен'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsImported", 1); got != "Imported 1 question." {
		t.Errorf("Tp(QuestionsImported, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsImported", 12); got != "Imported 12 questions." {
		t.Errorf("Tp(QuestionsImported, 12) = %q", got)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "RowsSkipped", 5); got != "Пропущено 5 строк." {
		t.Errorf("Tp(RowsSkipped, 5) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ScoreLine", map[string]any{"Score": 3, "Total": 4, "Percentage": "75.0%"})
	if got != "3 of 4 correct (75.0%)" {
		t.Errorf("Td(ScoreLine) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestErrorMessageID(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{model.ErrEmptyBank, "ErrEmptyBank"},
		{fmt.Errorf("load: %w", model.ErrNotFound), "ErrNotFound"},
		{model.ErrAlreadyFinished, "ErrAlreadyFinished"},
		{&model.ValidationError{Reason: "x"}, "ErrValidation"},
		{fmt.Errorf("disk on fire"), "ErrInternal"},
	}
	for _, tt := range tests {
		if got := ErrorMessageID(tt.err); got != tt.want {
			t.Errorf("ErrorMessageID(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Выйти" {
		t.Errorf("expected Russian from Accept-Language, got %q", got)
	}
}

func TestMiddlewareLangOverride(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
	}))

	req := httptest.NewRequest(http.MethodGet, "/?lang=ru", nil)
	req.Header.Set("Accept-Language", "en")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "Выйти" {
		t.Fatalf("expected ?lang=ru to win, got %q", got)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "lang" || cookies[0].Value != "ru" {
		t.Fatalf("expected lang cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Выйти" {
		t.Errorf("expected cookie language, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=xx", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "Log out" {
		t.Errorf("unsupported language should fall back to default, got %q", got)
	}
	if n := len(rec.Result().Cookies()); n != 0 {
		t.Errorf("unsupported language should not set a cookie, got %d", n)
	}
}

func TestSupported(t *testing.T) {
	initLang(t, "en")
	for lang, want := range map[string]bool{"en": true, "ru-RU": true, "de": false, "!!": false} {
		if got := Supported(lang); got != want {
			t.Errorf("Supported(%q) = %v, want %v", lang, got, want)
		}
	}
}
