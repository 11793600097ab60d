package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/internal/billing"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/logging"
	"github.com/diewo77/devispro/internal/models"
	"github.com/diewo77/devispro/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// setupFileStore opens an on-disk database whose transactions take the write
// lock up front, so concurrent writers queue instead of failing.
func setupFileStore(t *testing.T) repository.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "devis.db") + "?_busy_timeout=10000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.New(db)
}

func setupStore(t *testing.T) repository.Store {
	t.Helper()
	return repository.New(setupTestDB(t))
}

func seedUser(t *testing.T, s repository.Store, email string, credits int, tier string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", FirstName: "A", LastName: "B", Credits: credits, SubscriptionTier: tier}
	if err := s.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// fakeProvider records calls instead of talking to Stripe.
type fakeProvider struct {
	mu          sync.Mutex
	customerErr error
	prices      map[string]billing.Price
	customers   int
	requests    []billing.CheckoutRequest
}

func (f *fakeProvider) CreateCustomer(_ context.Context, email, _ string, _ uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.customerErr != nil {
		return "", f.customerErr
	}
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeProvider) LookupPrice(_ context.Context, id string) (billing.Price, error) {
	p, ok := f.prices[id]
	if !ok {
		return billing.Price{}, errors.New("no such price")
	}
	return p, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

// recordingPublisher keeps published events in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTokens() *auth.Authenticator { return auth.New("test-secret", 0) }

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

var discard = logging.Discard()
