package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

type VerificationRepository interface {
	Create(ctx context.Context, v *domain.Verification) error
	// Consume deletes and returns the unexpired verification with the given
	// value. A token can be consumed once; later calls get gorm.ErrRecordNotFound.
	Consume(ctx context.Context, value string, now time.Time) (*domain.Verification, error)
	DeleteByIdentifier(ctx context.Context, identifier string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormVerificationRepository struct {
	store
}

func NewGormVerificationRepository(db *gorm.DB, timeout time.Duration) VerificationRepository {
	return &gormVerificationRepository{store: newStore(db, timeout)}
}

func (r *gormVerificationRepository) Create(ctx context.Context, v *domain.Verification) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Create(v).Error
}

func (r *gormVerificationRepository) Consume(ctx context.Context, value string, now time.Time) (*domain.Verification, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var v domain.Verification
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("value = ? AND expires_at > ?", value, now.UTC()).First(&v).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", v.ID).Delete(&domain.Verification{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormVerificationRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Where("identifier = ?", identifier).Delete(&domain.Verification{}).Error
}

func (r *gormVerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	result := db.Where("expires_at <= ?", now.UTC()).Delete(&domain.Verification{})
	return result.RowsAffected, result.Error
}
