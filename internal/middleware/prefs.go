package middleware

import (
	"context"
	"net/http"

	"github.com/diewo77/devispro/i18n"
)

type ctxKey string

const ctxLang ctxKey = "pref_lang"

// Prefs resolves the response language (cookie > query > Accept-Language)
// and stores it in the request context. A query-provided language is
// persisted in a cookie for 30 days.
func Prefs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := ""
		if c, err := r.Cookie("lang"); err == nil && c.Value != "" {
			lang = c.Value
		}
		if ql := r.URL.Query().Get("lang"); ql != "" {
			lang = ql
			http.SetCookie(w, &http.Cookie{Name: "lang", Value: lang, Path: "/", MaxAge: 86400 * 30, HttpOnly: true})
		}
		if lang != i18n.FR && lang != i18n.EN {
			lang = i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		}
		ctx := context.WithValue(r.Context(), ctxLang, lang)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LangFrom returns the language stored by Prefs, or French.
func LangFrom(r *http.Request) string {
	if v, ok := r.Context().Value(ctxLang).(string); ok && v != "" {
		return v
	}
	return i18n.FR
}
