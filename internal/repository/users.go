package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/devispro/internal/models"
)

type userRepo struct{ db *gorm.DB }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = models.TierFree
	}
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r *userRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepo) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepo) ByCustomerRef(ctx context.Context, ref string) (*models.User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	var u models.User
	if err := r.db.WithContext(ctx).Where("payment_customer_ref = ?", ref).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepo) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepo) SetCustomerRef(ctx context.Context, id uint, ref string) error {
	return r.update(ctx, id, map[string]any{"payment_customer_ref": ref})
}

func (r *userRepo) ConsumeCredit(ctx context.Context, id uint) (int, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND subscription_tier = ? AND credits > 0", id, models.TierFree).
		UpdateColumn("credits", gorm.Expr("credits - 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNoCredits
	}
	var credits int
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Pluck("credits", &credits).Error; err != nil {
		return 0, err
	}
	return credits, nil
}

func (r *userRepo) ApplySubscription(ctx context.Context, id uint, tier string, credits int) error {
	return r.update(ctx, id, map[string]any{"subscription_tier": tier, "credits": credits})
}

func (r *userRepo) AddCredits(ctx context.Context, id uint, n int) error {
	return r.update(ctx, id, map[string]any{"credits": gorm.Expr("credits + ?", n)})
}

func (r *userRepo) SetTier(ctx context.Context, id uint, tier string) error {
	return r.update(ctx, id, map[string]any{"subscription_tier": tier})
}

func (r *userRepo) update(ctx context.Context, id uint, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
