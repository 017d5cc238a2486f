package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tomlord1122/todo-app/internal/config"
	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/logger"
)

// Service owns the GORM connection pool.
type Service interface {
	Health() map[string]string
	Close() error
	GetDB() *gorm.DB
	// Migrate creates or updates the application tables.
	Migrate(ctx context.Context) error
}

type service struct {
	db   *gorm.DB
	name string
	log  zerolog.Logger
}

// New connects to Postgres using the settings in cfg.
func New(cfg *config.Config, log zerolog.Logger) (Service, error) {
	return Open(postgres.Open(cfg.DSN()), cfg, log)
}

// Open builds a Service on top of any GORM dialector. Tests use it with SQLite.
func Open(dialector gorm.Dialector, cfg *config.Config, log zerolog.Logger) (Service, error) {
	gormLog := gormlogger.New(
		logger.Printf{Log: log.With().Str("component", "gorm").Logger(), Level: zerolog.DebugLevel},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(log.GetLevel()),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	return &service{db: db, name: cfg.DBName, log: log}, nil
}

func gormLogLevel(level zerolog.Level) gormlogger.LogLevel {
	switch {
	case level <= zerolog.DebugLevel:
		return gormlogger.Info
	case level <= zerolog.WarnLevel:
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Health pings the database and reports connection pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	sqlDB, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("failed to get underlying DB for health check: %v", err)
		s.log.Error().Err(err).Msg("health check: get underlying DB")
		return stats
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.log.Error().Err(err).Msg("health check: db down")
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := sqlDB.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 80 {
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	if dbStats.MaxIdleClosed > int64(dbStats.OpenConnections)/2 && dbStats.OpenConnections > dbStats.Idle {
		stats["message"] = "Many idle connections are being closed, consider revising the connection pool settings (MaxIdleConns, ConnMaxIdleTime)."
	}

	if dbStats.MaxLifetimeClosed > int64(dbStats.OpenConnections)/2 {
		stats["message"] = "Many connections are being closed due to max lifetime, consider increasing ConnMaxLifetime or revising the connection usage pattern."
	}

	return stats
}

func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info().Str("database", s.name).Msg("closing connection pool")
	return sqlDB.Close()
}
