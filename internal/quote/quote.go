// Package quote holds the quote ("devis") document model and the line-item calculator.
//
// A Quote is a plain value owned by its caller. Every mutation helper in this
// package recomputes the totals before returning so a Quote handed back to the
// caller never carries stale totals.
package quote

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of quote dates (HTML date input format).
const DateLayout = "2006-01-02"

// DefaultValidity is how long a fresh quote stays valid.
const DefaultValidity = 7 * 24 * time.Hour

// Allowed TVA rates, in percent.
var TVARates = []float64{20, 10, 5.5, 0}

// Company is the issuer of the quote.
type Company struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	SIRET   string `json:"siret"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// Client is the recipient of the quote.
type Client struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

// Details carries the document header fields.
type Details struct {
	Number   string `json:"number"`
	Date     string `json:"date"`
	Validity string `json:"validity"`
	Notes    string `json:"notes"`
}

// Totals are the aggregate amounts of a quote.
type Totals struct {
	HT  float64 `json:"ht"`
	TVA float64 `json:"tva"`
	TTC float64 `json:"ttc"`
}

// LineItem is one service line. HT and Total are derived by Recompute.
type LineItem struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TVARate     float64 `json:"tvaRate"`
	HT          float64 `json:"ht"`
	Total       float64 `json:"total"`
}

// Tax returns the TVA amount of the line.
func (li LineItem) Tax() float64 {
	return li.HT * (li.TVARate / 100)
}

// UnmarshalJSON accepts numbers or numeric strings for the amount fields and the
// legacy "tva" key for the rate. Anything that does not parse counts as 0.
func (li *LineItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		Description string          `json:"description"`
		Quantity    json.RawMessage `json:"quantity"`
		Price       json.RawMessage `json:"price"`
		TVARate     json.RawMessage `json:"tvaRate"`
		TVA         json.RawMessage `json:"tva"`
		HT          json.RawMessage `json:"ht"`
		Total       json.RawMessage `json:"total"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rate := raw.TVARate
	if len(rate) == 0 {
		rate = raw.TVA
	}
	*li = LineItem{
		ID:          int64(lenientNumber(raw.ID)),
		Description: raw.Description,
		Quantity:    lenientNumber(raw.Quantity),
		Price:       lenientNumber(raw.Price),
		TVARate:     lenientNumber(rate),
		HT:          lenientNumber(raw.HT),
		Total:       lenientNumber(raw.Total),
	}
	return nil
}

func lenientNumber(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Quote is the whole document.
type Quote struct {
	ID       string     `json:"id"`
	Date     string     `json:"date"`
	Company  Company    `json:"company"`
	Client   Client     `json:"client"`
	Details  Details    `json:"details"`
	Services []LineItem `json:"services"`
	Totals   Totals     `json:"totals"`
}

// Number returns the display number, falling back to the document id.
func (q Quote) Number() string {
	if q.Details.Number != "" {
		return q.Details.Number
	}
	return q.ID
}

// Filename is the export filename convention for this quote.
func (q Quote) Filename() string {
	return "devis-" + q.Number() + ".pdf"
}

// New returns an empty quote numbered DEV-<year>-<nnn>, dated now and valid for a week.
func New(now time.Time) Quote {
	number := fmt.Sprintf("DEV-%d-%03d", now.Year(), rand.Intn(1000))
	return Quote{
		ID:   number,
		Date: now.Format(DateLayout),
		Details: Details{
			Number:   number,
			Date:     now.Format(DateLayout),
			Validity: now.Add(DefaultValidity).Format(DateLayout),
		},
		Services: []LineItem{},
	}
}

// ValidTVARate reports whether rate is one of the allowed TVA rates.
func ValidTVARate(rate float64) bool {
	for _, r := range TVARates {
		if r == rate {
			return true
		}
	}
	return false
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
