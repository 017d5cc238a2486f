package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TitleMaxLength bounds Todo.Title, counted in characters.
const TitleMaxLength = 500

type Todo struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Title     string    `gorm:"size:500;not null"`
	Completed bool      `gorm:"not null;default:false"`
	UserID    string    `gorm:"type:varchar(36);not null;index"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// BeforeCreate assigns an opaque id to todos that don't have one yet.
func (t *Todo) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
