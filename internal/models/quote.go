package models

import (
	"time"

	"github.com/diewo77/devispro/internal/quote"
)

// Quote statuses.
const (
	QuoteDraft     = "draft"
	QuoteSent      = "sent"
	QuotePaid      = "paid"
	QuoteCancelled = "cancelled"
)

// ValidQuoteStatus reports whether s is a known status.
func ValidQuoteStatus(s string) bool {
	switch s {
	case QuoteDraft, QuoteSent, QuotePaid, QuoteCancelled:
		return true
	}
	return false
}

// Column sizes of the quotes table.
const (
	QuoteNumberSize   = 64
	ClientNameSize    = 255
	ClientAddressSize = 500
	ClientEmailSize   = 255
)

// StoredQuote is a quote saved server side. Totals are denormalized from Services.
type StoredQuote struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	UserID        uint             `gorm:"not null;uniqueIndex:idx_quotes_user_number" json:"user_id"`
	Number        string           `gorm:"size:64;not null;uniqueIndex:idx_quotes_user_number" json:"quote_number"`
	ClientName    string           `gorm:"size:255;not null" json:"client_name"`
	ClientAddress string           `gorm:"size:500" json:"client_address,omitempty"`
	ClientEmail   string           `gorm:"size:255" json:"client_email,omitempty"`
	Company       quote.Company    `gorm:"serializer:json;type:text" json:"company"`
	Services      []quote.LineItem `gorm:"serializer:json;type:text" json:"services"`
	TotalHT       float64          `gorm:"not null" json:"total_ht"`
	TotalTVA      float64          `gorm:"not null" json:"total_tva"`
	TotalTTC      float64          `gorm:"not null" json:"total_ttc"`
	Notes         string           `gorm:"type:text" json:"notes,omitempty"`
	QuoteDate     string           `gorm:"size:10" json:"quote_date,omitempty"`
	ValidUntil    string           `gorm:"size:10" json:"valid_until,omitempty"`
	Status        string           `gorm:"size:20;not null;default:draft" json:"status"`
}

func (StoredQuote) TableName() string { return "quotes" }

// OwnerID makes stored quotes subject to ownership checks.
func (q *StoredQuote) OwnerID() uint { return q.UserID }

// Document rebuilds the editable quote from the stored columns.
func (q *StoredQuote) Document() quote.Quote {
	doc := quote.Quote{
		ID:      q.Number,
		Date:    q.QuoteDate,
		Company: q.Company,
		Client:  quote.Client{Name: q.ClientName, Address: q.ClientAddress, Email: q.ClientEmail},
		Details: quote.Details{
			Number:   q.Number,
			Date:     q.QuoteDate,
			Validity: q.ValidUntil,
			Notes:    q.Notes,
		},
		Services: append([]quote.LineItem{}, q.Services...),
	}
	quote.Recompute(&doc)
	return doc
}
