package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/diewo77/devispro/httpx"
	"github.com/diewo77/devispro/internal/middleware"
	"github.com/diewo77/devispro/internal/services"
	"github.com/diewo77/devispro/view"
)

type QuoteHandler struct {
	svc    *services.QuoteService
	logger *slog.Logger
}

func NewQuoteHandler(svc *services.QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{svc: svc, logger: logger}
}

// Create handles POST /api/quotes.
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in services.SubmitInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.svc.Submit(r.Context(), uid, in)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"quote": res.Quote, "credits_remaining": res.CreditsRemaining})
}

// List handles GET /api/quotes?limit=&offset=.
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", services.DefaultPageSize)
	switch {
	case limit <= 0:
		limit = services.DefaultPageSize
	case limit > services.MaxPageSize:
		limit = services.MaxPageSize
	}
	offset := max(queryInt(r, "offset", 0), 0)
	items, total, err := h.svc.List(r.Context(), uid, limit, offset)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"items": items, "total": total, "limit": limit, "offset": offset})
}

// Get handles GET /api/quotes/{id}.
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, err := h.svc.Get(r.Context(), uid, id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"quote": q})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/quotes/{id}/status.
func (h *QuoteHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in statusRequest
	if !decode(w, r, &in) {
		return
	}
	q, err := h.svc.UpdateStatus(r.Context(), uid, id, in.Status)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"quote": q})
}

// PDF handles GET /api/quotes/{id}/pdf.
func (h *QuoteHandler) PDF(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.PDF(r.Context(), uid, id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	if doc.Degraded {
		w.Header().Set("X-PDF-Degraded", "1")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// Preview handles GET /api/quotes/{id}/preview.
func (h *QuoteHandler) Preview(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, err := h.svc.Get(r.Context(), uid, id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := view.QuotePreview(&buf, middleware.LangFrom(r), q.Document()); err != nil {
		h.logger.Error("preview render failed", "quote_id", q.ID, "error", err)
		Fail(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
