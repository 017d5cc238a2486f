package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tomlord1122/todo-app/internal/config"
	"github.com/Tomlord1122/todo-app/internal/database"
	"github.com/Tomlord1122/todo-app/internal/metrics"
	"github.com/Tomlord1122/todo-app/internal/procedure"
	"github.com/Tomlord1122/todo-app/internal/ratelimit"
	"github.com/Tomlord1122/todo-app/internal/service"
)

// Deps are the collaborators the HTTP layer needs. Everything is built once
// in main and passed in explicitly.
type Deps struct {
	Config  *config.Config
	DB      database.Service
	Todos   service.TodoService
	Auth    service.AuthService
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

type Server struct {
	cfg        *config.Config
	db         database.Service
	todos      service.TodoService
	auth       service.AuthService
	limiter    ratelimit.Limiter
	metrics    *metrics.Metrics
	log        zerolog.Logger
	procedures *procedure.Registry
}

// New builds the server and registers every procedure.
func New(d Deps) *Server {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	s := &Server{
		cfg:     d.Config,
		db:      d.DB,
		todos:   d.Todos,
		auth:    d.Auth,
		limiter: d.Limiter,
		metrics: d.Metrics,
		log:     d.Logger,
	}
	s.procedures = procedure.NewRegistry(procedure.Options{
		Logger:     d.Logger.With().Str("component", "procedure").Logger(),
		Sessions:   d.Auth,
		CookieName: d.Config.SessionCookieName,
		Observe:    []procedure.Middleware{d.Metrics.Procedure()},
	})
	s.registerProcedures()
	return s
}

// NewServer wraps the routes in an *http.Server listening on the configured port.
func NewServer(d Deps) *http.Server {
	appServer := New(d)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.cfg.Port),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
