package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diewo77/devispro/gate"
	"github.com/diewo77/devispro/internal/apperr"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/metrics"
	"github.com/diewo77/devispro/internal/models"
	"github.com/diewo77/devispro/internal/pdf"
	"github.com/diewo77/devispro/internal/quote"
	"github.com/diewo77/devispro/internal/repository"
	"github.com/diewo77/devispro/internal/storage"
	"github.com/diewo77/devispro/validation"
)

// ResourceQuote is the gate resource type of stored quotes.
const ResourceQuote = "quote"

// Paging bounds for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SubmitInput is the quote snapshot sent by the editor. Totals are accepted
// for compatibility and ignored: they are recomputed from Services.
type SubmitInput struct {
	Number        string           `json:"quote_number"`
	QuoteDate     string           `json:"quote_date"`
	ValidUntil    string           `json:"valid_until"`
	ClientName    string           `json:"client_name"`
	ClientAddress string           `json:"client_address"`
	ClientEmail   string           `json:"client_email"`
	Company       quote.Company    `json:"company"`
	Services      []quote.LineItem `json:"services"`
	Notes         string           `json:"notes"`
	Totals        *quote.Totals    `json:"totals,omitempty"`
}

// SubmitResult is the stored quote and the balance left after the save.
type SubmitResult struct {
	Quote            *models.StoredQuote
	CreditsRemaining int
}

// Exporter renders a quote document.
type Exporter interface {
	Export(q quote.Quote) (pdf.Document, error)
}

type QuoteService struct {
	store    repository.Store
	gate     *gate.Gate[uint]
	exporter Exporter
	archive  storage.Storage // optional
	notify   notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewQuoteService(store repository.Store, exporter Exporter, archive storage.Storage, pub events.Publisher, logger *slog.Logger) *QuoteService {
	g := gate.New[uint]()
	g.Register(ResourceQuote, gate.Ownership())
	n := newNotifier(pub, logger)
	return &QuoteService{
		store:    store,
		gate:     g,
		exporter: exporter,
		archive:  archive,
		notify:   n,
		logger:   n.logger,
		now:      time.Now,
	}
}

// Submit stores a quote for userID. Free-tier users spend one credit in the
// same transaction as the insert; the conditional decrement refuses to go
// below zero so concurrent submissions cannot overspend.
func (s *QuoteService) Submit(ctx context.Context, userID uint, in SubmitInput) (*SubmitResult, error) {
	const op = "quote.submit"
	if strings.TrimSpace(in.ClientName) == "" {
		metrics.QuotesSubmitted.WithLabelValues("", "invalid").Inc()
		return nil, apperr.Validation(op, "client_name_required", "client name required")
	}
	v := validateServices(in.Services)
	validation.MaxBytes("quote_number", strings.TrimSpace(in.Number), models.QuoteNumberSize, v)
	validation.MaxBytes("client_name", strings.TrimSpace(in.ClientName), models.ClientNameSize, v)
	validation.MaxBytes("client_address", in.ClientAddress, models.ClientAddressSize, v)
	validation.MaxBytes("client_email", in.ClientEmail, models.ClientEmailSize, v)
	if !v.Empty() {
		metrics.QuotesSubmitted.WithLabelValues("", "invalid").Inc()
		return nil, apperr.Violations(op, v)
	}

	doc := quote.Quote{Services: append([]quote.LineItem{}, in.Services...)}
	totals := quote.Recompute(&doc)
	number := strings.TrimSpace(in.Number)
	if number == "" {
		number = quote.GenerateNumber(s.now())
	}
	sq := &models.StoredQuote{
		UserID:        userID,
		Number:        number,
		ClientName:    strings.TrimSpace(in.ClientName),
		ClientAddress: in.ClientAddress,
		ClientEmail:   in.ClientEmail,
		Company:       in.Company,
		Services:      doc.Services,
		TotalHT:       totals.HT,
		TotalTVA:      totals.TVA,
		TotalTTC:      totals.TTC,
		Notes:         in.Notes,
		QuoteDate:     in.QuoteDate,
		ValidUntil:    in.ValidUntil,
		Status:        models.QuoteDraft,
	}

	var (
		remaining int
		tier      string
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := tx.Users().ByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(op, "user_not_found", "user not found")
		}
		if err != nil {
			return err
		}
		tier, remaining = u.SubscriptionTier, u.Credits
		if u.ConsumesCredits() {
			left, err := tx.Users().ConsumeCredit(ctx, userID)
			switch {
			case errors.Is(err, repository.ErrNoCredits):
				// the tier may have changed since the read
				if u, err = tx.Users().ByID(ctx, userID); err != nil {
					return err
				}
				if u.ConsumesCredits() {
					return apperr.New(apperr.KindQuotaExceeded, op, "quota_exceeded", "no credits left")
				}
				tier, remaining = u.SubscriptionTier, u.Credits
			case err != nil:
				return err
			default:
				remaining = left
			}
		}
		if err := tx.Quotes().Create(ctx, sq); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Conflict(op, "quote_number_exists", "quote number already used")
			}
			return err
		}
		return nil
	})
	if err != nil {
		status := "error"
		if apperr.Is(err, apperr.KindQuotaExceeded) {
			status = "quota_exceeded"
		}
		metrics.QuotesSubmitted.WithLabelValues(tier, status).Inc()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Internal(err, op)
	}

	metrics.QuotesSubmitted.WithLabelValues(tier, "ok").Inc()
	s.notify.publish(ctx, events.QuoteSubmitted, userID, map[string]any{
		"quote_id":     sq.ID,
		"quote_number": sq.Number,
		"total_ttc":    sq.TotalTTC,
	})
	s.logger.Info("quote submitted", "user_id", userID, "quote_id", sq.ID, "number", sq.Number, "credits_remaining", remaining)
	return &SubmitResult{Quote: sq, CreditsRemaining: remaining}, nil
}

func validateServices(items []quote.LineItem) validation.Violations {
	v := validation.Violations{}
	for i, li := range items {
		prefix := fmt.Sprintf("services[%d].", i)
		validation.NonNegativeFloat(prefix+"quantity", li.Quantity, v)
		validation.NonNegativeFloat(prefix+"price", li.Price, v)
		if !quote.ValidTVARate(li.TVARate) {
			v[prefix+"tvaRate"] = "invalid_tva_rate"
		}
	}
	return v
}

// List returns one page of the user's quotes, newest first.
func (s *QuoteService) List(ctx context.Context, userID uint, limit, offset int) ([]models.StoredQuote, int64, error) {
	if err := s.gate.Authorize(ctx, userID, gate.ActionList, ResourceQuote, nil); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.KindForbidden, "quote.list", "forbidden", "forbidden")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.Quotes().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(err, "quote.list")
	}
	return items, total, nil
}

// Get loads a quote the user may act on.
func (s *QuoteService) Get(ctx context.Context, userID, id uint) (*models.StoredQuote, error) {
	return s.authorized(ctx, userID, id, gate.ActionView, "quote.get")
}

func (s *QuoteService) authorized(ctx context.Context, userID, id uint, action gate.Action, op string) (*models.StoredQuote, error) {
	q, err := s.store.Quotes().ByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(op, "quote_not_found", "quote not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	if err := s.gate.Authorize(ctx, userID, action, ResourceQuote, q); err != nil {
		return nil, apperr.Wrap(err, apperr.KindForbidden, op, "forbidden", "forbidden")
	}
	return q, nil
}

// UpdateStatus moves a quote to draft, sent, paid or cancelled.
func (s *QuoteService) UpdateStatus(ctx context.Context, userID, id uint, status string) (*models.StoredQuote, error) {
	const op = "quote.status"
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidQuoteStatus(status) {
		return nil, apperr.Validation(op, "invalid_status", "invalid status")
	}
	q, err := s.authorized(ctx, userID, id, gate.ActionUpdate, op)
	if err != nil {
		return nil, err
	}
	if err := s.store.Quotes().UpdateStatus(ctx, q.ID, status); err != nil {
		return nil, apperr.Internal(err, op)
	}
	q.Status = status
	return q, nil
}

// PDF renders a stored quote and archives the result. Archiving failures are
// logged only.
func (s *QuoteService) PDF(ctx context.Context, userID, id uint) (pdf.Document, error) {
	const op = "quote.pdf"
	q, err := s.authorized(ctx, userID, id, gate.ActionExport, op)
	if err != nil {
		return pdf.Document{}, err
	}
	doc, err := s.exporter.Export(q.Document())
	if err != nil {
		return pdf.Document{}, apperr.Internal(err, op)
	}
	layout := "full"
	if doc.Degraded {
		layout = "minimal"
		s.logger.Warn("pdf fell back to minimal layout", "quote_id", q.ID, "error", doc.Cause)
	}
	metrics.PDFExports.WithLabelValues(layout).Inc()

	if s.archive != nil {
		key := storage.QuotePDFKey(userID, doc.Filename)
		if err := s.archive.Put(ctx, key, bytes.NewReader(doc.Data), "application/pdf"); err != nil {
			s.logger.Warn("archive pdf failed", "key", key, "error", err)
		}
	}
	return doc, nil
}
