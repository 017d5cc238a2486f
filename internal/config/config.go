package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds application configuration read from the environment
// (and from a .env file, if one is present).
type Config struct {
	Port int

	// Database
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSchema          string
	DBMaxIdleConns    int
	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration
	DBQueryTimeout    time.Duration
	AutoMigrate       bool

	// Sessions
	SessionTTL        time.Duration
	SessionCookieName string
	CookieSecure      bool

	// Email verification
	VerificationTTL time.Duration
	AppBaseURL      string
	RabbitMQURL     string

	// Rate limiting. RedisURL is optional; without it limits are counted in the database.
	RedisURL         string
	AuthRateLimit    int
	AuthRateWindow   time.Duration
	GlobalRateLimit  int
	CORSAllowOrigins []string

	JanitorInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		DBHost:            getEnv("BLUEPRINT_DB_HOST", "localhost"),
		DBPort:            getEnv("BLUEPRINT_DB_PORT", "5432"),
		DBUser:            getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		DBPassword:        getEnv("BLUEPRINT_DB_PASSWORD", ""),
		DBName:            getEnv("BLUEPRINT_DB_DATABASE", "todo"),
		DBSchema:          getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		DBQueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		AutoMigrate:       getEnvBool("AUTO_MIGRATE", true),
		SessionTTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session_token"),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		VerificationTTL:   getEnvDuration("VERIFICATION_TTL", time.Hour),
		AppBaseURL:        strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		AuthRateLimit:     getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:    getEnvDuration("AUTH_RATE_WINDOW", time.Minute),
		GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 300),
		CORSAllowOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		JanitorInterval:   getEnvDuration("JANITOR_INTERVAL", 10*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.DBQueryTimeout <= 0 {
		return nil, fmt.Errorf("DB_QUERY_TIMEOUT must be positive")
	}

	return cfg, nil
}

// DSN builds the Postgres connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable search_path=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSchema)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
