package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Verification is a one-time email verification token. Identifier holds the
// email address being verified, Value the opaque token sent to it.
type Verification struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	Identifier string    `gorm:"not null;index"`
	Value      string    `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (v *Verification) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
