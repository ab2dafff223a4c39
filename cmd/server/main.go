// Package main is the entry point for the blog server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. Its job is to:
// 1. Read configuration (flags, config file, .env, env vars)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, ...).
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/blog/internal/config"
	"github.com/sakif/blog/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.ConfigPathEnv+")")
	flag.Parse()

	// === 1. READ CONFIGURATION ===
	// Logging is not configured yet, so a bad config goes to a default logger.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// Validate has already checked the level name.
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if cfg.UsingDevSecret() {
		logger.Warn("SECRET_KEY not set: sessions are signed with the development secret")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
