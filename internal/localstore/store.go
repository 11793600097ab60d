package localstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/diewo77/devispro/internal/quote"
)

// Storage keys. The last quote and the history never share a key.
const (
	LastQuoteKey = "lastQuote"
	HistoryKey   = "quoteHistory"
)

// HistoryLimit is the number of summaries kept, most recent first.
const HistoryLimit = 20

// Summary is the compact history entry of a saved quote.
type Summary struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	ClientName string    `json:"clientName"`
	TotalTTC   float64   `json:"totalTTC"`
	SavedAt    time.Time `json:"savedAt"`
}

type savedQuote struct {
	Quote   quote.Quote `json:"quote"`
	SavedAt time.Time   `json:"savedAt"`
}

// Store saves and restores quotes on top of a KV.
type Store struct {
	kv  KV
	now func() time.Time
}

func New(kv KV) *Store { return &Store{kv: kv, now: time.Now} }

// Save writes q to the last-quote slot and prepends its summary to the history.
// Totals are recomputed first so the stored document is never stale.
func (s *Store) Save(q quote.Quote) error {
	q, at, err := s.writeLast(q)
	if err != nil {
		return err
	}

	history := s.History()
	entry := Summary{ID: q.ID, Number: q.Number(), ClientName: q.Client.Name, TotalTTC: q.Totals.TTC, SavedAt: at}
	history = append([]Summary{entry}, history...)
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	hb, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("localstore: encode history: %w", err)
	}
	if err := s.kv.Set(HistoryKey, hb); err != nil {
		return fmt.Errorf("localstore: write history: %w", err)
	}
	return nil
}

// SaveDraft writes q to the last-quote slot only. History entries are
// reserved for exported quotes.
func (s *Store) SaveDraft(q quote.Quote) error {
	_, _, err := s.writeLast(q)
	return err
}

func (s *Store) writeLast(q quote.Quote) (quote.Quote, time.Time, error) {
	q.Services = append([]quote.LineItem(nil), q.Services...)
	quote.Recompute(&q)
	at := s.now().UTC()
	b, err := json.Marshal(savedQuote{Quote: q, SavedAt: at})
	if err != nil {
		return q, at, fmt.Errorf("localstore: encode quote: %w", err)
	}
	if err := s.kv.Set(LastQuoteKey, b); err != nil {
		return q, at, fmt.Errorf("localstore: write last quote: %w", err)
	}
	return q, at, nil
}

// Load returns the last saved quote. Missing, unreadable or corrupt data is
// reported as absent.
func (s *Store) Load() (quote.Quote, time.Time, bool) {
	b, ok, err := s.kv.Get(LastQuoteKey)
	if err != nil || !ok {
		return quote.Quote{}, time.Time{}, false
	}
	var saved savedQuote
	if err := json.Unmarshal(b, &saved); err != nil {
		return quote.Quote{}, time.Time{}, false
	}
	q := saved.Quote
	if q.ID == "" && q.Details.Number == "" {
		return quote.Quote{}, time.Time{}, false
	}
	if q.Services == nil {
		q.Services = []quote.LineItem{}
	}
	for i := range q.Services {
		if !quote.ValidTVARate(q.Services[i].TVARate) {
			q.Services[i].TVARate = 0
		}
	}
	quote.Recompute(&q)
	return q, saved.SavedAt, true
}

// History returns the saved summaries, most recent first. Corrupt history is
// treated as empty.
func (s *Store) History() []Summary {
	b, ok, err := s.kv.Get(HistoryKey)
	if err != nil || !ok {
		return nil
	}
	var h []Summary
	if err := json.Unmarshal(b, &h); err != nil {
		return nil
	}
	if len(h) > HistoryLimit {
		h = h[:HistoryLimit]
	}
	return h
}

// Clear removes the last quote and the history.
func (s *Store) Clear() error {
	if err := s.kv.Delete(LastQuoteKey); err != nil {
		return err
	}
	return s.kv.Delete(HistoryKey)
}
