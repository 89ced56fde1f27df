package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/config"
	"github.com/sudo-init-do/umoja/internal/db"
	"github.com/sudo-init-do/umoja/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("notification worker stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the notification worker")
	}
	if cfg.Store != "postgres" {
		return errors.New("the notification worker needs STORE=postgres to resolve recipients")
	}

	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer pool.Close()

	var mailer alerts.Mailer = alerts.LogMailer{}
	if cfg.PlunkAPIKey != "" {
		mailer = alerts.NewPlunk(cfg.PlunkAPIKey, cfg.PlunkFrom, cfg.PlunkAPIURL)
	} else {
		slog.Warn("PLUNK_API_KEY not set; notifications are logged only")
	}

	w := alerts.NewWorker(cfg.RedisAddr, store.NewPostgres(pool), mailer, 10)
	slog.Info("notification worker started", "queue", alerts.QueueName)
	return w.Run()
}
