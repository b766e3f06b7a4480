// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects the store, services,
// handlers, middleware and routes, and owns the server's lifecycle.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → store (sqlite or postgres)
//	store → AuthService, UserService, QuestionService, AnswerService, VoteService
//	services → handlers → routes
//
// All dependencies are assembled in New/setupRoutes (the "composition root").
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/config"
	"github.com/sakif/stackit/internal/handler"
	"github.com/sakif/stackit/internal/metrics"
	"github.com/sakif/stackit/internal/middleware"
	"github.com/sakif/stackit/internal/repository"
	pgRepo "github.com/sakif/stackit/internal/repository/postgres"
	sqliteRepo "github.com/sakif/stackit/internal/repository/sqlite"
	"github.com/sakif/stackit/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after the HTTP server has
// drained, so in-flight requests never see a closed database.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics
}

// OpenStore opens the backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return pgRepo.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite, "":
		return sqliteRepo.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// New opens the configured store and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server around an already opened store. The server
// takes ownership of store.
func NewWithStore(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                      → store ping
// GET    /metrics                      → Prometheus
// POST   /api/register                 → create account       (rate limited)
// POST   /api/login                    → issue token          (rate limited)
// GET    /api/auth/github/login        → GitHub redirect      (when configured)
// GET    /api/auth/github/callback     → GitHub sign-in       (when configured)
// GET    /api/questions                → list
// GET    /api/questions/{id}           → detail + view count
// GET    /api/me                       → caller profile       [auth]
// POST   /api/questions                → ask                  [auth]
// DELETE /api/questions/{id}           → delete with cascade  [auth]
// POST   /api/questions/{id}/answers   → answer               [auth]
// POST   /api/answers/{id}/accept      → accept               [auth]
// DELETE /api/answers/{id}             → delete               [auth]
// POST   /api/vote                     → toggle vote          [auth]
// GET    /api/users                    → list accounts        [auth, admin]
// PUT    /api/users/{id}/role          → change role          [auth, admin]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID  → unique ID per request, picked up by the logger
// 2. RealIP     → client IP from proxy headers (the rate limiter keys on it)
// 3. Recoverer  → panics become 500s
// 4. Logger     → one line per request
// 5. Metrics    → latency histogram by route pattern
// 6. CORS       → preflight answered before routing
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	// === Services ===
	// The store implements every repository interface; each service only
	// sees the ones it needs.
	authService := service.NewAuthService(s.store, tokens, passwords, s.logger)
	userService := service.NewUserService(s.store, s.logger)
	questionService := service.NewQuestionService(s.store, s.store, s.store, s.metrics, s.logger)
	answerService := service.NewAnswerService(s.store, s.store, s.store, s.metrics, s.logger)
	voteService := service.NewVoteService(s.store, s.store, s.metrics, s.logger)

	// === Handlers ===
	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, s.config.FrontendURL, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	questionHandler := handler.NewQuestionHandler(questionService, s.logger)
	answerHandler := handler.NewAnswerHandler(answerService, s.logger)
	voteHandler := handler.NewVoteHandler(voteService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.CORS(s.config.AllowedOrigins()))

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	credentials := middleware.NewRateLimiter(s.config.LoginRatePerMinute)
	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		// --- Public ---
		r.Group(func(r chi.Router) {
			r.Use(credentials.Handler)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})
		if github != nil {
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		}
		r.Get("/questions", questionHandler.HandleList)
		r.Get("/questions/{id}", questionHandler.HandleGet)

		// --- Authenticated ---
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)

			r.Post("/questions", questionHandler.HandleCreate)
			r.Delete("/questions/{id}", questionHandler.HandleDelete)
			r.Post("/questions/{id}/answers", answerHandler.HandleCreate)

			r.Post("/answers/{id}/accept", answerHandler.HandleAccept)
			r.Delete("/answers/{id}", answerHandler.HandleDelete)

			r.Post("/vote", voteHandler.HandleVote)

			r.Get("/users", userHandler.HandleList)
			r.Put("/users/{id}/role", userHandler.HandleChangeRole)
		})
	})

	return nil
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("driver", s.config.DBDriver),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}
