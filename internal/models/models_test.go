package models

import (
	"testing"

	"github.com/diewo77/devispro/internal/quote"
)

func TestPlanQuota(t *testing.T) {
	tests := []struct {
		tier string
		want int
		ok   bool
	}{
		{TierFree, 3, true},
		{TierBasic, 30, true},
		{TierPro, UnlimitedCredits, true},
		{"gold", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			got, ok := PlanQuota(tt.tier)
			if got != tt.want || ok != tt.ok {
				t.Errorf("PlanQuota(%q) = %d,%v want %d,%v", tt.tier, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestUser_View(t *testing.T) {
	u := &User{ID: 1, Email: "a@b.com", FirstName: "A", LastName: "B", Credits: 3, SubscriptionTier: TierFree, PasswordHash: "secret"}
	v := u.View()
	if v.Unlimited || v.Credits != 3 || v.Email != "a@b.com" {
		t.Errorf("unexpected view %+v", v)
	}
	u.SubscriptionTier = TierPro
	u.Credits = UnlimitedCredits
	if !u.View().Unlimited {
		t.Errorf("pro user should be unlimited")
	}
	if u.FullName() != "A B" {
		t.Errorf("FullName() = %q", u.FullName())
	}
}

func TestStoredQuote_Document(t *testing.T) {
	sq := &StoredQuote{
		UserID:     9,
		Number:     "DEV-2025-ABCDEF01",
		ClientName: "ACME",
		Services:   []quote.LineItem{{ID: 1, Quantity: 2, Price: 50, TVARate: 20}},
		QuoteDate:  "2025-06-10",
	}
	doc := sq.Document()
	if doc.Number() != "DEV-2025-ABCDEF01" || doc.Client.Name != "ACME" {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.Totals.TTC != 120 {
		t.Errorf("TTC = %v, want 120", doc.Totals.TTC)
	}
	if sq.OwnerID() != 9 {
		t.Errorf("OwnerID() = %d", sq.OwnerID())
	}
}

func TestValidQuoteStatus(t *testing.T) {
	for _, s := range []string{QuoteDraft, QuoteSent, QuotePaid, QuoteCancelled} {
		if !ValidQuoteStatus(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	if ValidQuoteStatus("archived") {
		t.Errorf("archived should be invalid")
	}
}
