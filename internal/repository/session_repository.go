package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	// FindValidByToken returns the session for token with its user loaded,
	// or gorm.ErrRecordNotFound if there is none or it expired before now.
	FindValidByToken(ctx context.Context, token string, now time.Time) (*domain.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormSessionRepository struct {
	store
}

func NewGormSessionRepository(db *gorm.DB, timeout time.Duration) SessionRepository {
	return &gormSessionRepository{store: newStore(db, timeout)}
}

func (r *gormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Omit("User").Create(session).Error
}

func (r *gormSessionRepository) FindValidByToken(ctx context.Context, token string, now time.Time) (*domain.Session, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var session domain.Session
	err := db.Preload("User").
		Where("token = ? AND expires_at > ?", token, now.UTC()).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	if session.User == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &session, nil
}

func (r *gormSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Where("token = ?", token).Delete(&domain.Session{}).Error
}

func (r *gormSessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Where("user_id = ?", userID).Delete(&domain.Session{}).Error
}

func (r *gormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	result := db.Where("expires_at <= ?", now.UTC()).Delete(&domain.Session{})
	return result.RowsAffected, result.Error
}
