// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"

	"github.com/Tomlord1122/todo-app/internal/config"
	"github.com/Tomlord1122/todo-app/internal/database"
)

// Config returns settings suitable for a single-connection in-memory database.
func Config() *config.Config {
	return &config.Config{
		DBName:            "test",
		DBMaxIdleConns:    1,
		DBMaxOpenConns:    1,
		DBConnMaxLifetime: time.Hour,
		DBQueryTimeout:    5 * time.Second,
	}
}

// Open returns a freshly migrated in-memory SQLite database that is closed
// when the test ends. Each call gets its own database.
func Open(t testing.TB) database.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	svc, err := database.Open(sqlite.Open(dsn), Config(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if err := svc.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return svc
}
