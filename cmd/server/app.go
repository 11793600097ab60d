package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/internal/billing"
	"github.com/diewo77/devispro/internal/config"
	"github.com/diewo77/devispro/internal/db"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/pdf"
	"github.com/diewo77/devispro/internal/repository"
	"github.com/diewo77/devispro/internal/server"
	"github.com/diewo77/devispro/internal/services"
	"github.com/diewo77/devispro/internal/storage"
)

const version = "1.0.0"

// App is the wired server.
type App struct {
	Handler http.Handler
	DB      *gorm.DB
	events  events.Publisher
}

// Close releases the broker connection and the database pool.
func (a *App) Close() {
	a.events.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func dbOptions(cfg config.Config) db.Options {
	return db.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseDSN, Debug: cfg.DBDebug, Migrations: cfg.Migrations}
}

func newStorage(cfg config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == storage.ProviderS3 {
		return storage.NewS3(cfg.S3, logger)
	}
	return storage.NewLocal(cfg.LocalStoragePath, logger)
}

// NewApp connects the database and builds every service behind the router.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.ConnectAndMigrate(dbOptions(cfg), logger)
	if err != nil {
		return nil, err
	}
	store := repository.New(conn)

	archive, err := newStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("document storage: %w", err)
	}

	var provider billing.Provider
	if cfg.BillingEnabled() {
		provider = billing.NewStripe(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout disabled")
	}
	pub := events.Connect(cfg.AMQPURL, logger)

	tokens := auth.New(cfg.SessionSecret, cfg.TokenTTL)
	h := server.New(server.Deps{
		Store:   store,
		Tokens:  tokens,
		Auth:    services.NewAuthService(store, tokens, provider, pub, logger),
		Quotes:  services.NewQuoteService(store, pdf.New(), archive, pub, logger),
		Billing: services.NewBillingService(store, provider, billing.NewWebhookVerifier(cfg.StripeWebhookSecret), billing.NewCatalog(cfg.Catalog), cfg.BaseURL, pub, logger),
		Logger:  logger,
		Version: version,
		Features: map[string]bool{
			"billing": cfg.BillingEnabled(),
			"webhook": cfg.StripeWebhookSecret != "",
			"events":  cfg.AMQPURL != "",
			"s3":      cfg.StorageProvider == storage.ProviderS3,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	return &App{Handler: h, DB: conn, events: pub}, nil
}
