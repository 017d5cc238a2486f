package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "session_token", cfg.SessionCookieName)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.CORSAllowOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("APP_BASE_URL", "https://todo.example/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.Equal(t, "https://todo.example", cfg.AppBaseURL)
}

func TestLoad_InvalidValuesFallBackOrFail(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("PORT", "70000")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("PORT", "8081")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.DBMaxOpenConns)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "todo", DBPort: "5432", DBSchema: "public"}
	assert.Equal(t, "host=db user=u password=p dbname=todo port=5432 sslmode=disable search_path=public", cfg.DSN())
}
