package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// store is embedded by every GORM repository. Each call gets its own
// deadline so a stuck query cannot block a request forever.
type store struct {
	db      *gorm.DB
	timeout time.Duration
}

func newStore(db *gorm.DB, timeout time.Duration) store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return store{db: db, timeout: timeout}
}

func (s store) with(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}
