package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/internal/billing"
	"github.com/diewo77/devispro/internal/logging"
	"github.com/diewo77/devispro/internal/models"
	"github.com/diewo77/devispro/internal/pdf"
	"github.com/diewo77/devispro/internal/repository"
	"github.com/diewo77/devispro/internal/services"
	"github.com/diewo77/devispro/internal/storage"
)

type testServer struct {
	h       http.Handler
	store   repository.Store
	archive string
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logging.Discard()
	store := repository.New(db)
	dir := t.TempDir()
	archive, err := storage.NewLocal(dir, log)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	tokens := auth.New("test-secret", time.Hour)
	h := New(Deps{
		Store:              store,
		Tokens:             tokens,
		Auth:               services.NewAuthService(store, tokens, nil, nil, log),
		Quotes:             services.NewQuoteService(store, pdf.New(), archive, nil, log),
		Billing:            services.NewBillingService(store, nil, billing.NewWebhookVerifier("whsec_test"), billing.Catalog{}, "http://localhost", nil, log),
		Logger:             log,
		Version:            "test",
		RateLimitPerMinute: rateLimit,
	})
	return &testServer{h: h, store: store, archive: dir}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/register", "", fmt.Sprintf(`{"email":%q,"password":"secret1","firstName":"Jean","lastName":"Dupont"}`, email))
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	return decodeBody(t, w)["token"].(string)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 100)
	for _, p := range []string{"/health", "/healthz", "/api/health", "/api/test"} {
		if w := s.do(t, http.MethodGet, p, "", ""); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", p, w.Code)
		}
	}
	body := decodeBody(t, s.do(t, http.MethodGet, "/api/test", "", ""))
	if body["database"] != "ok" || body["success"] != true {
		t.Fatalf("unexpected diagnostic: %v", body)
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.register(t, "jean@example.com")

	w := s.do(t, http.MethodPost, "/api/login", "", `{"email":"jean@example.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/login", "", `{"email":"jean@example.com","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/user", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d", w.Code)
	}
	user := decodeBody(t, w)["user"].(map[string]any)
	if user["email"] != "jean@example.com" || user["credits"].(float64) != 3 || user["subscriptionTier"] != "free" {
		t.Fatalf("unexpected user: %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatal("password hash must not be exposed")
	}

	credits := decodeBody(t, s.do(t, http.MethodGet, "/api/credits", token, ""))
	if credits["credits"].(float64) != 3 || credits["unlimited"] != false {
		t.Fatalf("unexpected credits: %v", credits)
	}

	for _, tok := range []string{"", "garbage"} {
		if w := s.do(t, http.MethodGet, "/api/me", tok, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401 got %d", tok, w.Code)
		}
	}

	w = s.do(t, http.MethodPost, "/api/register", "", `{"email":"jean@example.com","password":"x","firstName":"J","lastName":"D"}`)
	if w.Code != http.StatusBadRequest || decodeBody(t, w)["error"] != "Cet email est déjà utilisé" {
		t.Fatalf("duplicate email: %d %s", w.Code, w.Body.String())
	}
}

func TestQuoteFlow(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.register(t, "q@example.com")
	payload := `{"quote_number":"DEV-2025-001","client_name":"Client SA","services":[{"description":"Audit","quantity":2,"price":50,"tvaRate":20}],"totals":{"ht":1,"tva":1,"ttc":1}}`

	w := s.do(t, http.MethodPost, "/api/quotes", token, payload)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	q := body["quote"].(map[string]any)
	if q["total_ttc"].(float64) != 120 || body["credits_remaining"].(float64) != 2 {
		t.Fatalf("unexpected submit result: %v", body)
	}
	id := int(q["id"].(float64))

	list := decodeBody(t, s.do(t, http.MethodGet, "/api/quotes?limit=500", token, ""))
	if list["total"].(float64) != 1 || list["limit"].(float64) != 100 {
		t.Fatalf("unexpected list: %v", list)
	}

	if w := s.do(t, http.MethodGet, fmt.Sprintf("/api/quotes/%d", id), token, ""); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/api/quotes/%d/status", id), token, `{"status":"sent"}`)
	if w.Code != http.StatusOK || decodeBody(t, w)["quote"].(map[string]any)["status"] != "sent" {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/quotes/%d/pdf", id), token, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Fatal("pdf body is not a PDF")
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "devis-DEV-2025-001.pdf") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	matches, _ := filepath.Glob(filepath.Join(s.archive, "quotes", "*", "devis-DEV-2025-001.pdf"))
	if len(matches) != 1 {
		t.Fatalf("pdf not archived")
	}
	if fi, err := os.Stat(matches[0]); err != nil || fi.Size() == 0 {
		t.Fatalf("archived pdf empty: %v", err)
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/quotes/%d/preview?lang=en", id), token, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Total incl. VAT") {
		t.Fatalf("preview: %d", w.Code)
	}

	// another user cannot see the quote
	other := s.register(t, "other@example.com")
	if w := s.do(t, http.MethodGet, fmt.Sprintf("/api/quotes/%d", id), other, ""); w.Code != http.StatusForbidden {
		t.Fatalf("foreign quote: expected 403 got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/quotes/abc", token, ""); w.Code != http.StatusNotFound {
		t.Fatalf("bad id: expected 404 got %d", w.Code)
	}
}

func TestQuoteQuotaAndValidation(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.register(t, "quota@example.com")

	w := s.do(t, http.MethodPost, "/api/quotes", token, `{"services":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing client: %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/quotes?lang=en", token, `{"client_name":"C","services":[{"quantity":-1,"price":1,"tvaRate":7}]}`)
	body := decodeBody(t, w)
	details := body["details"].(map[string]any)
	if w.Code != http.StatusBadRequest || details["services[0].tvaRate"] != "Invalid VAT rate" {
		t.Fatalf("line validation: %d %v", w.Code, body)
	}
	if w := s.do(t, http.MethodPost, "/api/quotes", token, `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", w.Code)
	}

	for i := 0; i < models.FreeCredits; i++ {
		if w := s.do(t, http.MethodPost, "/api/quotes", token, `{"client_name":"C"}`); w.Code != http.StatusOK {
			t.Fatalf("submit %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	w = s.do(t, http.MethodPost, "/api/quotes", token, `{"client_name":"C"}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("quota: expected 402 got %d", w.Code)
	}
}

func TestCheckoutAndWebhookErrors(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.register(t, "pay@example.com")

	w := s.do(t, http.MethodPost, "/api/create-checkout-session", token, `{"priceId":"bad"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid price: %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/create-checkout-session", token, `{"priceId":"price_123"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("unconfigured billing: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, "/api/create-checkout-session", "", `{"priceId":"price_123"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("checkout without token: %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", strings.NewReader(`{"id":"evt_1","type":"checkout.session.completed"}`))
	r.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Signature invalide" {
		t.Fatalf("webhook signature: %d %s", rec.Code, rec.Body.String())
	}

	big := strings.Repeat("a", 70<<10)
	if w := s.do(t, http.MethodPost, "/api/stripe-webhook", "", big); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized webhook: %d", w.Code)
	}
}

func TestRateLimitAndFallbacks(t *testing.T) {
	s := newTestServer(t, 1)
	s.do(t, http.MethodPost, "/api/login", "", `{"email":"a@b.c","password":"x"}`)
	w := s.do(t, http.MethodPost, "/api/login", "", `{"email":"a@b.c","password":"x"}`)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/nope", "", "")
	if w.Code != http.StatusNotFound || decodeBody(t, w)["success"] != false {
		t.Fatalf("unknown route: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodDelete, "/api/login", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "devispro_http_requests_total") {
		t.Fatalf("metrics not exposed: %d", w.Code)
	}
}
