// Package server is the composition root: it opens the database and Redis,
// builds services and handlers, mounts routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB, redis.Client
//	            → cache.Standings, notify.Publisher, reminder.Scheduler
//	            → services (take repository interfaces)
//	            → handlers (take services)
//	            → chi routes
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/cache"
	"github.com/sakif/habit-tracker/internal/config"
	"github.com/sakif/habit-tracker/internal/handler"
	"github.com/sakif/habit-tracker/internal/middleware"
	"github.com/sakif/habit-tracker/internal/notify"
	"github.com/sakif/habit-tracker/internal/reminder"
	sqliteRepo "github.com/sakif/habit-tracker/internal/repository/sqlite"
	"github.com/sakif/habit-tracker/internal/service"
)

// pruneSpec is how often stale pending requests are swept when REQUEST_TTL is set.
const pruneSpec = "@every 1h"

// Server owns the HTTP router and every long-lived resource behind it.
// Close releases them in reverse order of creation.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db        *sqliteRepo.DB
	rdb       *redis.Client // nil when Redis is disabled or unreachable
	reminders *reminder.Scheduler
}

// New opens storage, wires every layer and mounts the routes. The reminder
// scheduler is loaded here but only starts firing in Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		rdb:    cache.Open(context.Background(), cfg.RedisURL, logger),
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// === Side-effect plumbing (all fail open without Redis) ===
	publisher := notify.NewPublisher(s.rdb, s.logger)
	standings := cache.NewStandings(s.rdb, cfg.StandingsTTL)
	s.reminders = reminder.New(publisher, s.logger)

	// === Services ===
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	habitService := service.NewHabitService(s.db, s.db, s.reminders, standings, s.logger)
	friendService := service.NewFriendService(s.db, s.db, publisher, s.logger)
	shareService := service.NewShareService(s.db, s.db, s.db, publisher, s.logger)
	leaderboardService := service.NewLeaderboardService(s.db, s.db, standings, s.logger)

	n, err := habitService.ScheduleAll(context.Background())
	if err != nil {
		return fmt.Errorf("loading reminders: %w", err)
	}
	s.logger.Info("habit reminders scheduled", slog.Int("count", n))

	if cfg.RequestTTL > 0 {
		ttl := cfg.RequestTTL
		if _, err := s.reminders.Every(pruneSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := friendService.Prune(ctx, ttl); err != nil {
				s.logger.Error("pruning stale requests failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return fmt.Errorf("scheduling request prune: %w", err)
		}
	}

	// === Handlers ===
	var github handler.GitHubSignIn
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, cfg.IsProduction(), s.logger)
	habitHandler := handler.NewHabitHandler(habitService, s.logger)
	friendHandler := handler.NewFriendHandler(friendService, s.logger)
	shareHandler := handler.NewShareHandler(shareService, s.logger)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService, s.logger)
	notificationHandler := handler.NewNotificationHandler(publisher, s.logger)

	var redisPing handler.PingFunc
	if s.rdb != nil {
		redisPing = func(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
	}
	healthHandler := handler.NewHealthHandler(s.db.Ping, redisPing, s.logger)

	// === Global Middleware ===
	// Order matters: request id first so the logger sees it, recoverer last
	// so a panic is still logged and measured as a 500.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	// === Operational ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === Sessions (public) ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.Post("/signout", authHandler.HandleSignOut)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	// === API (authenticated) ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Patch("/me", authHandler.HandleRename)

		r.Route("/habits", func(r chi.Router) {
			r.Get("/", habitHandler.HandleList)
			r.Post("/", habitHandler.HandleCreate)
			r.Get("/{id}", habitHandler.HandleGet)
			r.Put("/{id}", habitHandler.HandleUpdate)
			r.Delete("/{id}", habitHandler.HandleDelete)
			r.Post("/{id}/complete", habitHandler.HandleComplete)
			r.Get("/{id}/reward", habitHandler.HandleRewardPreview)
			r.Delete("/{id}/shares/{userId}", habitHandler.HandleUnshare)
		})

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", friendHandler.HandleListFriends)
			r.Delete("/{id}", friendHandler.HandleRemoveFriend)
			r.Get("/requests", friendHandler.HandleListIncoming)
			r.Post("/requests", friendHandler.HandleSend)
			r.Get("/requests/sent", friendHandler.HandleListSent)
			r.Post("/requests/{id}/respond", friendHandler.HandleRespond)
			r.Delete("/requests/{id}", friendHandler.HandleCancel)
		})

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", shareHandler.HandleSend)
			r.Get("/requests", shareHandler.HandleListIncoming)
			r.Post("/requests/{id}/respond", shareHandler.HandleRespond)
			r.Delete("/requests/{id}", shareHandler.HandleCancel)
		})

		r.Route("/leaderboards", func(r chi.Router) {
			r.Get("/", leaderboardHandler.HandleList)
			r.Post("/", leaderboardHandler.HandleCreate)
			r.Get("/{id}", leaderboardHandler.HandleGet)
			r.Delete("/{id}", leaderboardHandler.HandleDelete)
			r.Get("/{id}/standings", leaderboardHandler.HandleStandings)
			r.Post("/{id}/participants", leaderboardHandler.HandleAddParticipant)
			r.Delete("/{id}/participants/{name}", leaderboardHandler.HandleRemoveParticipant)
			r.Post("/{id}/points/add", leaderboardHandler.HandleAddPoints)
			r.Post("/{id}/points/remove", leaderboardHandler.HandleRemovePoints)
		})

		r.Get("/notifications/stream", notificationHandler.HandleStream)
	})

	return nil
}

// Start runs the HTTP server and the reminder scheduler until SIGINT or
// SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and drain in-flight requests (30s)
//  2. stop the scheduler, waiting for running jobs
//  3. close Redis and the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // lifted per request by the SSE stream
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serverErrors := make(chan error, 1)

	s.reminders.Start()
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.Bool("redis", s.rdb != nil),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.reminders.Stop(ctx)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close stops the scheduler and releases Redis and the database. Safe to
// call on a server that was never started.
func (s *Server) Close() error {
	if s.reminders != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.reminders.Stop(ctx)
		cancel()
	}
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
