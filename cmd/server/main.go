// Package main is the entry point for the habit tracker API server.
//
// main stays minimal: load configuration, build the logger, hand both to
// internal/server, and block until shutdown. Everything else lives in
// internal/ packages so it can be tested without a process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/habit-tracker/internal/config"
	"github.com/sakif/habit-tracker/internal/logging"
	"github.com/sakif/habit-tracker/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	// .env, then config.yml, then environment variables (highest precedence).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("using the development JWT secret; set JWT_SECRET before deploying")
	}
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; standings cache and notifications are disabled")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT/SIGTERM and a graceful shutdown.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
