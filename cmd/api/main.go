package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tomlord1122/todo-app/internal/config"
	"github.com/Tomlord1122/todo-app/internal/database"
	"github.com/Tomlord1122/todo-app/internal/janitor"
	"github.com/Tomlord1122/todo-app/internal/logger"
	"github.com/Tomlord1122/todo-app/internal/metrics"
	"github.com/Tomlord1122/todo-app/internal/notify"
	"github.com/Tomlord1122/todo-app/internal/ratelimit"
	"github.com/Tomlord1122/todo-app/internal/repository"
	"github.com/Tomlord1122/todo-app/internal/server"
	"github.com/Tomlord1122/todo-app/internal/service"
)

func gracefulShutdown(ctx context.Context, apiServer *http.Server, log zerolog.Logger, done chan<- struct{}) {
	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")

	// The server has 5 seconds to finish the requests it is currently handling.
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	close(done)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Database
	dbService, err := database.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbService.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	if cfg.AutoMigrate {
		log.Info().Msg("running database auto-migration")
		if err := dbService.Migrate(ctx); err != nil {
			return err
		}
	}
	gormDB := dbService.GetDB()

	// 2. Repositories
	todoRepo := repository.NewGormTodoRepository(gormDB, cfg.DBQueryTimeout)
	userRepo := repository.NewGormUserRepository(gormDB, cfg.DBQueryTimeout)
	sessionRepo := repository.NewGormSessionRepository(gormDB, cfg.DBQueryTimeout)
	verificationRepo := repository.NewGormVerificationRepository(gormDB, cfg.DBQueryTimeout)
	rateLimitRepo := repository.NewGormRateLimitRepository(gormDB, cfg.DBQueryTimeout)

	// 3. Side channels
	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.RabbitMQURL != "" {
		mq, err := notify.NewRabbitMQNotifier(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer mq.Close()
		notifier = mq
		log.Info().Msg("verification emails published to rabbitmq")
	}

	var limiter ratelimit.Limiter = ratelimit.NewStoreLimiter(rateLimitRepo, nil)
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb)
		log.Info().Msg("rate limits counted in redis")
	}

	// 4. Services
	todoService := service.NewTodoService(todoRepo)
	authService := service.NewAuthService(userRepo, sessionRepo, verificationRepo, notifier, log, service.AuthOptions{
		SessionTTL:      cfg.SessionTTL,
		VerificationTTL: cfg.VerificationTTL,
		BaseURL:         cfg.AppBaseURL,
	})

	m := metrics.New()

	// 5. Background cleanup
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	j := &janitor.Janitor{
		Sessions:           sessionRepo,
		Verifications:      verificationRepo,
		RateLimits:         rateLimitRepo,
		RateLimitRetention: cfg.AuthRateWindow,
		Interval:           cfg.JanitorInterval,
		Recorder:           m,
		Log:                log.With().Str("component", "janitor").Logger(),
	}
	go j.Run(janitorCtx)

	// 6. HTTP server
	apiServer := server.NewServer(server.Deps{
		Config:  cfg,
		DB:      dbService,
		Todos:   todoService,
		Auth:    authService,
		Limiter: limiter,
		Metrics: m,
		Logger:  log,
	})

	done := make(chan struct{})
	go gracefulShutdown(ctx, apiServer, log, done)

	log.Info().Str("addr", apiServer.Addr).Msg("starting server")
	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	stopJanitor()
	log.Info().Msg("graceful shutdown complete")
	return nil
}
