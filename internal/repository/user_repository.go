package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// MarkEmailVerified flips email_verified to true. It reports false when the
	// user was already verified or does not exist.
	MarkEmailVerified(ctx context.Context, id string) (bool, error)
}

type gormUserRepository struct {
	store
}

func NewGormUserRepository(db *gorm.DB, timeout time.Duration) UserRepository {
	return &gormUserRepository{store: newStore(db, timeout)}
}

func (r *gormUserRepository) Create(ctx context.Context, user *domain.User) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Create(user).Error
}

func (r *gormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var user domain.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var user domain.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) MarkEmailVerified(ctx context.Context, id string) (bool, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	result := db.Model(&domain.User{}).
		Where("id = ? AND email_verified = ?", id, false).
		Update("email_verified", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
