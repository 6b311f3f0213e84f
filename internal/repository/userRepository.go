package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/storage"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *storage.Postgres
}

func NewUserRepository(db *storage.Postgres) *UserRepository {
	return &UserRepository{db: db}
}

// Inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.DB.WithContext(ctx).Create(user).Error
}

// Retrieves user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &user, err
}

// Retrieves user by id
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &user, err
}

// Updates a user's subscription tier and custom quota override
func (r *UserRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, tier string, customQuota *int64) error {
	updates := map[string]interface{}{
		"subscription_tier": tier,
		"custom_quota":      customQuota,
	}

	return r.db.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Counts active users on a tier
func (r *UserRepository) CountByTier(ctx context.Context, tier string) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("subscription_tier = ? AND is_active = ?", tier, true).
		Count(&count).Error

	return count, err
}
