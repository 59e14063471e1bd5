package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/db"
	"github.com/taskboard/apiserver/internal/handlers"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/metrics"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/ratelimit"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// New opens the database and optional backends and wires the HTTP routes.
// A configured but unreachable broker or bucket only disables its feature.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logger.Get()

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		if !errors.Is(err, mq.ErrDisabled) {
			log.Warn("event broker unavailable, events disabled", "backend", cfg.MQ.Backend, "error", err)
		}
		broker = nil
	}
	events := mq.NewEventPublisher(broker, cfg.MQ.Channel, log.With("component", "events"))

	taskOpts := []services.TaskOption{services.WithEvents(events)}
	exports, err := storage.Open(ctx, cfg.Storage)
	switch {
	case err == nil:
		taskOpts = append(taskOpts, services.WithExports(exports))
	case !errors.Is(err, storage.ErrDisabled):
		log.Warn("object storage unavailable, exports disabled", "backend", cfg.Storage.Backend, "error", err)
	}

	credentials, err := services.NewCredentialService(
		store.NewUserRepository(dbConn),
		tokens,
		cfg.Auth.BcryptCost,
		services.PasswordPolicy{MinLength: cfg.Auth.PasswordMinLength},
		events,
	)
	if err != nil {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}
	tasks := services.NewTaskService(store.NewTaskRepository(dbConn), taskOpts...)

	limiter := ratelimit.New(ctx, cfg.RateLimit, log.With("component", "ratelimit"))
	authMiddleware := handlers.RequireAuth(tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Handle("/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, credentials, authMiddleware, limiter.Middleware("login"))
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, tasks, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server configured",
		"port", port,
		"db_driver", cfg.Database.Driver,
		"events", broker != nil,
		"exports", exports != nil,
		"rate_limit", limiter.Enabled(),
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		limiter:    limiter,
		logger:     log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker, limiter and database.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		err = errors.Join(err, s.broker.Close())
	}
	if s.limiter != nil {
		err = errors.Join(err, s.limiter.Close())
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}
