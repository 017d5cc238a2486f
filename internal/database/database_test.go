package database

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"

	"github.com/Tomlord1122/todo-app/internal/config"
	"github.com/Tomlord1122/todo-app/internal/domain"
)

func mustStartPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("todo"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func testConfig() *config.Config {
	return &config.Config{
		DBName:            "todo",
		DBMaxIdleConns:    2,
		DBMaxOpenConns:    5,
		DBConnMaxLifetime: time.Minute,
		DBQueryTimeout:    5 * time.Second,
	}
}

func TestPostgres_MigrateHealthClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn := mustStartPostgresContainer(t)

	srv, err := Open(gormpostgres.Open(dsn), testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, srv.Migrate(context.Background()))
	for _, model := range domain.Models() {
		assert.True(t, srv.GetDB().Migrator().HasTable(model), "missing table for %T", model)
	}

	stats := srv.Health()
	assert.Equal(t, "up", stats["status"])
	assert.Equal(t, "It's healthy", stats["message"])

	require.NoError(t, srv.Close())
	assert.Equal(t, "down", srv.Health()["status"])
}

func TestPostgres_TodoCascadesWithUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn := mustStartPostgresContainer(t)

	srv, err := Open(gormpostgres.Open(dsn), testConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	require.NoError(t, srv.Migrate(context.Background()))

	db := srv.GetDB()
	user := &domain.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&domain.Todo{Title: "Buy milk", UserID: user.ID}).Error)

	require.NoError(t, db.Delete(user).Error)

	var count int64
	require.NoError(t, db.Model(&domain.Todo{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}
