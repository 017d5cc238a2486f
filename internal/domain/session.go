package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is a live authentication grant identified by an opaque bearer token.
type Session struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);not null;index"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	Token     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
