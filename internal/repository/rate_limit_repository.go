package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

type RateLimitRepository interface {
	// Hit increments the counter stored under key and returns the new count.
	Hit(ctx context.Context, key string, now time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormRateLimitRepository struct {
	store
}

func NewGormRateLimitRepository(db *gorm.DB, timeout time.Duration) RateLimitRepository {
	return &gormRateLimitRepository{store: newStore(db, timeout)}
}

func (r *gormRateLimitRepository) Hit(ctx context.Context, key string, now time.Time) (int, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var count int
	err := db.Transaction(func(tx *gorm.DB) error {
		row := domain.RateLimit{Key: key, Count: 1, LastRequest: now.UTC()}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":        gorm.Expr("rate_limits.count + 1"),
				"last_request": now.UTC(),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		var stored domain.RateLimit
		if err := tx.Where(&domain.RateLimit{Key: key}).First(&stored).Error; err != nil {
			return err
		}
		count = stored.Count
		return nil
	})
	return count, err
}

func (r *gormRateLimitRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	result := db.Where("last_request < ?", cutoff.UTC()).Delete(&domain.RateLimit{})
	return result.RowsAffected, result.Error
}
