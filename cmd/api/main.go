package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/umoja/internal/admin"
	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/auth"
	"github.com/sudo-init-do/umoja/internal/config"
	"github.com/sudo-init-do/umoja/internal/db"
	"github.com/sudo-init-do/umoja/internal/marketplace"
	"github.com/sudo-init-do/umoja/internal/metrics"
	appmw "github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/payments"
	"github.com/sudo-init-do/umoja/internal/store"
	"github.com/sudo-init-do/umoja/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store unavailable", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	var notify alerts.Notifier = alerts.LogNotifier{}
	if cfg.RedisAddr != "" {
		q := alerts.NewQueue(cfg.RedisAddr)
		defer q.Close()
		notify = q
	}

	e := newServer(cfg, st, notify)

	go func() {
		slog.Info("API server listening", "port", cfg.Port, "store", cfg.Store, "env", cfg.Environment)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store == "memory" {
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return store.NewPostgres(pool), nil
}

func newServer(cfg *config.Config, st store.Store, notify alerts.Notifier) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	}))
	e.Use(metrics.Middleware())

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := st.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", metrics.Handler())

	tokens := appmw.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	requireAuth := appmw.JWT(tokens)

	authGroup := e.Group("/auth", middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	auth.NewHandler(st, tokens, cfg.AdminBootstrapSecret).Register(authGroup, requireAuth)
	user.NewHandler(user.NewProfiles(st)).Register(e, requireAuth)

	engine := marketplace.NewEngine(st, notify)
	marketplace.NewHandler(engine, marketplace.NewListings(st), marketplace.NewRoutes(st), marketplace.NewReviews(st)).
		Register(e, requireAuth)

	gateway := payments.NewPayhero(gatewayConfig(cfg.Payhero))
	payments.NewHandler(payments.NewService(st, gateway, gatewayConfig(cfg.Payhero), notify)).Register(e, requireAuth)

	adminGroup := e.Group("/admin", requireAuth, appmw.AdminGuard)
	adminGroup.GET("/stats", admin.NewHandler(st).Stats)

	return e
}

func gatewayConfig(p config.Payhero) payments.GatewayConfig {
	return payments.GatewayConfig{
		BaseURL:        p.BaseURL,
		BasicAuthToken: p.BasicAuthToken,
		ChannelID:      p.ChannelID,
		Provider:       p.Provider,
		CallbackURL:    p.CallbackURL,
		WebhookSecret:  p.WebhookSecret,
		AllowUnsigned:  p.AllowUnsigned,
		Timeout:        p.Timeout,
	}
}
