package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/devispro/internal/models"
)

type quoteRepo struct{ db *gorm.DB }

func (r *quoteRepo) Create(ctx context.Context, q *models.StoredQuote) error {
	if q.Status == "" {
		q.Status = models.QuoteDraft
	}
	return translate(r.db.WithContext(ctx).Create(q).Error)
}

func (r *quoteRepo) ByID(ctx context.Context, id uint) (*models.StoredQuote, error) {
	var q models.StoredQuote
	if err := r.db.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

func (r *quoteRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.StoredQuote, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.StoredQuote{}).Where("user_id = ?", userID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.StoredQuote
	if err := scope().Order("created_at desc, id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *quoteRepo) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).Model(&models.StoredQuote{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type paymentEventRepo struct{ db *gorm.DB }

func (r *paymentEventRepo) Record(ctx context.Context, ev *models.PaymentEvent) (bool, error) {
	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_ref"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *paymentEventRepo) Exists(ctx context.Context, providerRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("provider_ref = ?", providerRef).Count(&count).Error
	return count > 0, err
}
