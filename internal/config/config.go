// Package config loads process settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	Store       string // postgres or memory
	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	// AdminBootstrapSecret enables POST /auth/admin/bootstrap when set.
	AdminBootstrapSecret string

	RedisAddr string

	Payhero Payhero

	PlunkAPIKey string
	PlunkFrom   string
	PlunkAPIURL string
}

type Payhero struct {
	BaseURL        string
	BasicAuthToken string
	ChannelID      int
	Provider       string
	CallbackURL    string
	WebhookSecret  string
	AllowUnsigned  bool
	Timeout        time.Duration
}

// Load reads .env if present and validates the result.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:        get("PORT", "8080"),
		Environment: get("ENVIRONMENT", "development"),
		Store:       get("STORE", "postgres"),
		JWTSecret:   getenv("JWT_SECRET"),
		RedisAddr:   get("REDIS_ADDR", ""),

		AdminBootstrapSecret: getenv("ADMIN_BOOTSTRAP_SECRET"),

		PlunkAPIKey: get("PLUNK_API_KEY", ""),
		PlunkFrom:   get("PLUNK_FROM", ""),
		PlunkAPIURL: get("PLUNK_API_URL", "https://api.useplunk.com/v1/send"),
		Payhero: Payhero{
			BaseURL:        strings.TrimRight(get("PAYHERO_BASE_URL", "https://backend.payhero.co.ke"), "/"),
			BasicAuthToken: get("PAYHERO_BASIC_AUTH_TOKEN", ""),
			Provider:       get("PAYHERO_PROVIDER", "m-pesa"),
			CallbackURL:    get("PAYHERO_CALLBACK_URL", ""),
			WebhookSecret:  get("PAYHERO_WEBHOOK_SECRET", ""),
		},
	}

	var errs []error

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	switch cfg.Store {
	case "postgres":
		if getenv("DATABASE_URL") == "" && getenv("DB_HOST") == "" {
			errs = append(errs, errors.New("DATABASE_URL or DB_HOST is required for STORE=postgres"))
		}
		cfg.DatabaseURL = DatabaseURL(getenv)
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE must be postgres or memory, got %q", cfg.Store))
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	var err error
	if cfg.JWTTTL, err = time.ParseDuration(get("JWT_TTL", "72h")); err != nil {
		errs = append(errs, fmt.Errorf("JWT_TTL: %w", err))
	}
	if cfg.Payhero.Timeout, err = time.ParseDuration(get("PAYHERO_TIMEOUT", "30s")); err != nil {
		errs = append(errs, fmt.Errorf("PAYHERO_TIMEOUT: %w", err))
	}
	if cfg.Payhero.ChannelID, err = strconv.Atoi(getenv("PAYHERO_CHANNEL_ID")); err != nil || cfg.Payhero.ChannelID <= 0 {
		errs = append(errs, errors.New("PAYHERO_CHANNEL_ID must be a positive integer"))
	}
	if cb := cfg.Payhero.CallbackURL; cb != "" && !strings.HasPrefix(cb, "https://") {
		errs = append(errs, errors.New("PAYHERO_CALLBACK_URL must use https"))
	}
	if v := get("PAYHERO_WEBHOOK_ALLOW_UNSIGNED", "false"); v != "" {
		allow, perr := strconv.ParseBool(v)
		if perr != nil {
			errs = append(errs, fmt.Errorf("PAYHERO_WEBHOOK_ALLOW_UNSIGNED: %w", perr))
		}
		cfg.Payhero.AllowUnsigned = allow
	}
	if cfg.Payhero.WebhookSecret == "" && !cfg.Payhero.AllowUnsigned {
		errs = append(errs, errors.New("PAYHERO_WEBHOOK_SECRET is required unless PAYHERO_WEBHOOK_ALLOW_UNSIGNED=true"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL returns DATABASE_URL, or a DSN assembled from the DB_* parts.
func DatabaseURL(getenv func(string) string) string {
	if u := getenv("DATABASE_URL"); u != "" {
		return u
	}
	port := getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("DB_USER"), getenv("DB_PASSWORD"), getenv("DB_HOST"), port, getenv("DB_NAME"))
}

// LoadDotEnv loads .env when present, for commands that read only a subset
// of the settings.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Production reports whether ENVIRONMENT is production.
func (c *Config) Production() bool {
	return c.Environment == "production"
}
