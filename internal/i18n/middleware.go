package i18n

import "net/http"

const langCookie = "lang"

// Middleware injects a localizer into every request context.
// Precedence: ?lang= (remembered in a cookie), the lang cookie,
// Accept-Language, then the server default.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" && Supported(q) {
				http.SetCookie(w, &http.Cookie{
					Name:     langCookie,
					Value:    q,
					Path:     "/",
					MaxAge:   365 * 24 * 3600,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
				prefs = append(prefs, q)
			} else if c, err := r.Cookie(langCookie); err == nil && Supported(c.Value) {
				prefs = append(prefs, c.Value)
			}
			prefs = append(prefs, r.Header.Get("Accept-Language"), lang)
			loc := NewLocalizer(prefs...)
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
