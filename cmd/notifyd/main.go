package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/insolvency-console/notifyd/internal/config"
	"github.com/insolvency-console/notifyd/internal/runner"
	"github.com/insolvency-console/notifyd/internal/session"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	var sc sessionCommand
	flag.StringVar(&sc.login, "login", "", "Store this access token in session.file and exit")
	flag.DurationVar(&sc.ttl, "expires", 0, "Lifetime of the -login token, 0 never expires")
	flag.BoolVar(&sc.logout, "logout", false, "Remove session.file and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "configPath", *configPath, "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.App.SlogLevel())
	logger.Info("Config loaded successfully",
		"app", cfg.App.Name,
		"configPath", *configPath,
		"archive", cfg.Archive.Enabled())

	if sc.requested() {
		var store *session.FileStore
		if cfg.Session.File != "" {
			store = session.NewFileStore(cfg.Session.File, logger)
		}
		if err := sc.run(store, time.Now(), logger); err != nil {
			logger.Error("Session command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()

	r, err := runner.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create runner", "error", err)
		os.Exit(1)
	}

	if err := r.Run(ctx); err != nil {
		logger.Error("Service error", "error", err)
		os.Exit(1)
	}
}

// setupLogger initializes the logger
func setupLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if err := os.MkdirAll("logs", 0755); err != nil {
		slog.Error("Failed to create logs directory", "error", err)
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	logFile, err := os.OpenFile("logs/notifyd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to open log file", "error", err)
		// Fallback to stdout
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	// Output to both file and stdout
	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), opts))
}
