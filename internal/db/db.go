// Package db opens the gorm connection and brings the schema up to date.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres database driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/devispro/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Options selects the driver and migration strategy.
type Options struct {
	Driver string // sqlite or postgres
	DSN    string
	Debug  bool
	// Migrations runs the embedded SQL migrations instead of AutoMigrate.
	// Only postgres supports it.
	Migrations bool
	Retries    int
	RetryDelay time.Duration
}

var requiredTables = []string{"users", "quotes", "payment_events"}

// ConnectAndMigrate opens the database, retrying while it starts up, and
// migrates the schema.
func ConnectAndMigrate(opts Options, log *slog.Logger) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("DATABASE_DSN est vide, vérifiez la configuration de l'environnement")
	}
	if opts.Retries <= 0 {
		opts.Retries = 10
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	dsn := opts.DSN
	var dialector gorm.Dialector
	switch opts.Driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dsn = NormalizeDSN(dsn)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel), TranslateError: true}

	var db *gorm.DB
	var err error
	for i := 0; i < opts.Retries; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			break
		}
		log.Warn("retrying DB connection", "attempt", i+1, "error", err)
		time.Sleep(opts.RetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	log.Info("database connected", "driver", opts.Driver, "dsn", MaskDSN(dsn))

	if err := Migrate(db, opts); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema and checks the core tables exist.
func Migrate(db *gorm.DB, opts Options) error {
	if opts.Migrations {
		if opts.Driver != "postgres" {
			return fmt.Errorf("sql migrations require postgres, got %q", opts.Driver)
		}
		if err := runSQLMigrations(ToURLDSN(NormalizeDSN(opts.DSN))); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range models.All() {
			if err := db.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}
	for _, table := range requiredTables {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// runSQLMigrations applies the embedded migrations with golang-migrate.
func runSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
