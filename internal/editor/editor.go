// Package editor owns the quote being edited and ties the calculator, the PDF
// exporter and the local store together.
package editor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/diewo77/devispro/internal/localstore"
	"github.com/diewo77/devispro/internal/pdf"
	"github.com/diewo77/devispro/internal/quote"
)

// Exporter renders a quote to a document.
type Exporter interface {
	Export(q quote.Quote) (pdf.Document, error)
}

// Editor holds the current quote. It is not safe for concurrent use; callers
// drive it from a single event loop.
type Editor struct {
	q        quote.Quote
	store    *localstore.Store
	exporter Exporter
	logger   *slog.Logger
	now      func() time.Time
}

// New starts on the last saved quote when there is one, or on a fresh quote.
func New(store *localstore.Store, exporter Exporter, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Editor{store: store, exporter: exporter, logger: logger, now: time.Now}
	if q, savedAt, ok := store.Load(); ok {
		logger.Debug("restored last quote", "number", q.Number(), "saved_at", savedAt)
		e.q = q
	} else {
		e.q = quote.New(e.now())
	}
	return e
}

// Quote returns a copy of the current quote.
func (e *Editor) Quote() quote.Quote {
	q := e.q
	q.Services = append([]quote.LineItem(nil), e.q.Services...)
	return q
}

// Reset replaces the current quote with a fresh one.
func (e *Editor) Reset() {
	e.q = quote.New(e.now())
}

func (e *Editor) SetCompany(c quote.Company) { e.q.Company = c }
func (e *Editor) SetClient(c quote.Client)   { e.q.Client = c }
func (e *Editor) SetDetails(d quote.Details) {
	e.q.Details = d
	if d.Number != "" {
		e.q.ID = d.Number
	}
}

func (e *Editor) AddLineItem() quote.LineItem {
	return quote.AddLineItem(&e.q, e.now())
}

func (e *Editor) UpdateLineItem(id int64, p quote.Patch) bool {
	return quote.UpdateLineItem(&e.q, id, p)
}

func (e *Editor) RemoveLineItem(id int64) {
	quote.RemoveLineItem(&e.q, id)
}

func (e *Editor) Totals() quote.Totals { return e.q.Totals }

// Export renders the current quote. Only a full render saves the quote
// locally; a degraded document is returned unsaved. A failed save is logged,
// never returned.
func (e *Editor) Export() (pdf.Document, error) {
	quote.Recompute(&e.q)
	doc, err := e.exporter.Export(e.Quote())
	if err != nil {
		return pdf.Document{}, fmt.Errorf("editor: export: %w", err)
	}
	if doc.Degraded {
		e.logger.Warn("pdf export degraded to minimal document", "number", e.q.Number(), "error", doc.Cause)
		return doc, nil
	}
	if err := e.store.Save(e.q); err != nil {
		e.logger.Error("failed to save quote after export", "number", e.q.Number(), "error", err)
	}
	return doc, nil
}

// Save stores the current quote as the last quote without adding it to the
// history.
func (e *Editor) Save() error {
	quote.Recompute(&e.q)
	return e.store.SaveDraft(e.q)
}

// History lists the locally saved quotes, most recent first.
func (e *Editor) History() []localstore.Summary { return e.store.History() }
