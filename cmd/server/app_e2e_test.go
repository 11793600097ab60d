package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diewo77/devispro/internal/config"
	"github.com/diewo77/devispro/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Env:                "test",
		DBDriver:           "sqlite",
		DatabaseDSN:        "file:e2e_" + t.Name() + "?mode=memory&cache=shared",
		SessionSecret:      "e2e-secret",
		StorageProvider:    "local",
		LocalStoragePath:   t.TempDir(),
		BaseURL:            "http://localhost:3000",
		RateLimitPerMinute: 100,
	}
}

func TestAppEndToEnd(t *testing.T) {
	app, err := NewApp(testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/register", "application/json",
		strings.NewReader(`{"email":"e2e@example.com","password":"pw","firstName":"E","lastName":"Two"}`))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	var reg struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&reg)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !reg.Success || reg.Token == "" {
		t.Fatalf("register failed: %d %+v", resp.StatusCode, reg)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/quotes", strings.NewReader(`{"client_name":"ACME","services":[{"description":"x","quantity":1,"price":100,"tva":"20"}]}`))
	req.Header.Set("Authorization", "Bearer "+reg.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var sub struct {
		Quote struct {
			TotalTTC float64 `json:"total_ttc"`
		} `json:"quote"`
		CreditsRemaining int `json:"credits_remaining"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&sub)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || sub.Quote.TotalTTC != 120 || sub.CreditsRemaining != 2 {
		t.Fatalf("submit: %d %+v", resp.StatusCode, sub)
	}

	resp, err = http.Get(srv.URL + "/api/test")
	if err != nil {
		t.Fatalf("test endpoint: %v", err)
	}
	var diag struct {
		Version  string          `json:"version"`
		Features map[string]bool `json:"features"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&diag)
	resp.Body.Close()
	if diag.Version != version || diag.Features["billing"] {
		t.Fatalf("unexpected diagnostic: %+v", diag)
	}
}

func TestAppRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageProvider = "s3"
	if _, err := NewApp(cfg, logging.Discard()); err == nil {
		t.Fatal("s3 without bucket should be rejected")
	}
}
