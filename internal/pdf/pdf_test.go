package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/diewo77/devispro/internal/quote"
)

var pageObject = regexp.MustCompile(`/Type /Page[^s]`)

func fixture(items int) quote.Quote {
	q := quote.New(time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC))
	q.Company = quote.Company{Name: "Atelier Dupré", Address: "12 rue des Lilas, 75011 Paris", SIRET: "12345678900011", Email: "contact@dupre.fr"}
	q.Client = quote.Client{Name: "Mme Bérénice", Address: "3 place de l'Église, Lyon"}
	q.Details.Notes = "Acompte de 30 % à la commande. Travaux réalisés sous quinze jours après acceptation du devis."
	for i := 0; i < items; i++ {
		q.Services = append(q.Services, quote.LineItem{
			ID: int64(i + 1), Description: fmt.Sprintf("Prestation n°%d", i+1),
			Quantity: 2, Price: 50, TVARate: 20,
		})
	}
	return q
}

func TestExport(t *testing.T) {
	e := New()
	doc, err := e.Export(fixture(3))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Degraded {
		t.Fatalf("unexpected degraded export: %v", doc.Cause)
	}
	if !bytes.HasPrefix(doc.Data, []byte("%PDF")) {
		t.Fatalf("not a pdf")
	}
	if !regexp.MustCompile(`^devis-DEV-2025-\d{3}\.pdf$`).MatchString(doc.Filename) {
		t.Fatalf("bad filename %q", doc.Filename)
	}
	if n := len(pageObject.FindAll(doc.Data, -1)); n != 1 {
		t.Fatalf("expected 1 page, got %d", n)
	}
}

func TestExportPaginates(t *testing.T) {
	doc, err := New().Export(fixture(60))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Degraded {
		t.Fatalf("unexpected degraded export: %v", doc.Cause)
	}
	if n := len(pageObject.FindAll(doc.Data, -1)); n < 2 {
		t.Fatalf("expected pagination, got %d page(s)", n)
	}
}

func TestExportEmptyQuote(t *testing.T) {
	q := quote.Quote{ID: "DEV-2025-001"}
	doc, err := New().Export(q)
	if err != nil || doc.Degraded {
		t.Fatalf("export empty: err=%v degraded=%v", err, doc.Degraded)
	}
	if doc.Filename != "devis-DEV-2025-001.pdf" {
		t.Fatalf("filename %q", doc.Filename)
	}
}

func TestExportFallsBackOnPanic(t *testing.T) {
	e := New()
	e.render = func(*quote.Quote) ([]byte, error) { panic("layout exploded") }
	doc, err := e.Export(fixture(2))
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if !doc.Degraded || doc.Cause == nil {
		t.Fatalf("expected degraded document")
	}
	if !bytes.HasPrefix(doc.Data, []byte("%PDF")) {
		t.Fatalf("fallback is not a pdf")
	}
	if n := len(pageObject.FindAll(doc.Data, -1)); n != 1 {
		t.Fatalf("fallback must be a single page, got %d", n)
	}
}

func TestExportFallsBackOnError(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	e.render = func(*quote.Quote) ([]byte, error) { return nil, boom }
	doc, err := e.Export(fixture(1))
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if !errors.Is(doc.Cause, boom) {
		t.Fatalf("cause = %v", doc.Cause)
	}
}

func TestMoney(t *testing.T) {
	e := New()
	cases := map[float64]string{
		20:    "20,00 €",
		0:     "0,00 €",
		12.5:  "12,50 €",
		99.99: "99,99 €",
	}
	for in, want := range cases {
		if got := e.Money(in); got != want {
			t.Errorf("Money(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFrenchDate(t *testing.T) {
	if got := frenchDate("2025-06-17"); got != "17/06/2025" {
		t.Fatalf("got %q", got)
	}
	if got := frenchDate("demain"); got != "demain" {
		t.Fatalf("got %q", got)
	}
}
