// Package handlers adapts the services to HTTP. Every failure is answered
// with the JSON error envelope, localised from the request language.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/httpx"
	"github.com/diewo77/devispro/i18n"
	"github.com/diewo77/devispro/internal/apperr"
	"github.com/diewo77/devispro/internal/middleware"
)

// WriteError translates err to its status and localised message. Validation
// details are translated field by field.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.Status(err)
	code, details := apperr.Public(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	lang := middleware.LangFrom(r)
	if fields, ok := details.(map[string]string); ok {
		translated := make(map[string]string, len(fields))
		for k, v := range fields {
			translated[k] = i18n.T(lang, v)
		}
		details = translated
	}
	httpx.JSONError(w, status, i18n.T(lang, code), details)
}

// Fail writes a localised error for a bare code.
func Fail(w http.ResponseWriter, r *http.Request, status int, code string) {
	httpx.JSONError(w, status, i18n.T(middleware.LangFrom(r), code), nil)
}

// Unauthorized matches auth.Authenticator.Unauthorized.
func Unauthorized(w http.ResponseWriter, r *http.Request, code string) {
	Fail(w, r, http.StatusUnauthorized, code)
}

// RateLimited matches middleware.RateLimiter.Reject.
func RateLimited(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, nil, apperr.New(apperr.KindRateLimit, "http.ratelimit", "rate_limited", "too many requests"))
}

// MethodNotAllowed answers with the Allow header set.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	Fail(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.Decode(r, dst); err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		Unauthorized(w, r, "unauthorized")
	}
	return uid, ok
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		Fail(w, r, http.StatusNotFound, "quote_not_found")
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
