// Package repository is the single storage interface of the server, backed
// by gorm. The driver (sqlite or postgres) is chosen once at startup.
package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/devispro/internal/models"
)

var (
	ErrNotFound  = errors.New("repository: not found")
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrNoCredits is returned by ConsumeCredit when the conditional update matched no row.
	ErrNoCredits = errors.New("repository: no credits left")
)

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	ByID(ctx context.Context, id uint) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByCustomerRef(ctx context.Context, ref string) (*models.User, error)
	Exists(ctx context.Context, id uint) (bool, error)
	SetCustomerRef(ctx context.Context, id uint, ref string) error
	// ConsumeCredit atomically spends one credit of a free-tier user and
	// returns the new balance.
	ConsumeCredit(ctx context.Context, id uint) (int, error)
	ApplySubscription(ctx context.Context, id uint, tier string, credits int) error
	AddCredits(ctx context.Context, id uint, n int) error
	SetTier(ctx context.Context, id uint, tier string) error
}

type QuoteRepository interface {
	Create(ctx context.Context, q *models.StoredQuote) error
	ByID(ctx context.Context, id uint) (*models.StoredQuote, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.StoredQuote, int64, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

type PaymentEventRepository interface {
	// Record inserts ev unless its ProviderRef is already known. It reports
	// whether a row was inserted.
	Record(ctx context.Context, ev *models.PaymentEvent) (bool, error)
	Exists(ctx context.Context, providerRef string) (bool, error)
}

// Store groups the repositories. WithTx runs fn against a Store bound to one
// transaction, committed when fn returns nil.
type Store interface {
	Users() UserRepository
	Quotes() QuoteRepository
	PaymentEvents() PaymentEventRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

type gormStore struct{ db *gorm.DB }

// New wraps an open gorm connection.
func New(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Users() UserRepository                 { return &userRepo{db: s.db} }
func (s *gormStore) Quotes() QuoteRepository               { return &quoteRepo{db: s.db} }
func (s *gormStore) PaymentEvents() PaymentEventRepository { return &paymentEventRepo{db: s.db} }

func (s *gormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) Ping(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("SELECT 1").Error
}

// translate maps driver errors to the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	// drivers that do not implement error translation
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicate
	}
	return err
}
