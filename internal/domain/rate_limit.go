package domain

import "time"

// RateLimit counts hits for one fixed-window bucket.
// Key has the form "<rule>:<identity>:<bucket>".
type RateLimit struct {
	ID          uint      `gorm:"primaryKey"`
	Key         string    `gorm:"uniqueIndex;not null"`
	Count       int       `gorm:"column:count;not null;default:0"`
	LastRequest time.Time `gorm:"not null;index"`
}

// Models lists every table the application owns, in migration order.
func Models() []any {
	return []any{&User{}, &Session{}, &Verification{}, &RateLimit{}, &Todo{}}
}
