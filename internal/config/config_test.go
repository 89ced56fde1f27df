package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"STORE":                  "memory",
		"JWT_SECRET":             "secret",
		"PAYHERO_CHANNEL_ID":     "911",
		"PAYHERO_WEBHOOK_SECRET": "whsec",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 72*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30*time.Second, cfg.Payhero.Timeout)
	assert.Equal(t, "https://backend.payhero.co.ke", cfg.Payhero.BaseURL)
	assert.Equal(t, "m-pesa", cfg.Payhero.Provider)
	assert.Equal(t, 911, cfg.Payhero.ChannelID)
	assert.False(t, cfg.Payhero.AllowUnsigned)
	assert.False(t, cfg.Production())
}

func TestFromEnv_ReportsEveryProblem(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"STORE":                "postgres",
		"LOG_LEVEL":            "loud",
		"JWT_TTL":              "forever",
		"PAYHERO_CALLBACK_URL": "http://insecure.example/cb",
	}))
	require.Error(t, err)
	for _, want := range []string{
		"DATABASE_URL or DB_HOST",
		"LOG_LEVEL",
		"JWT_SECRET is required",
		"JWT_TTL",
		"PAYHERO_CHANNEL_ID",
		"PAYHERO_CALLBACK_URL must use https",
		"PAYHERO_WEBHOOK_SECRET is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFromEnv_UnsignedWebhooks(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"STORE":                          "memory",
		"JWT_SECRET":                     "secret",
		"PAYHERO_CHANNEL_ID":             "1",
		"PAYHERO_WEBHOOK_ALLOW_UNSIGNED": "true",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.Payhero.AllowUnsigned)

	_, err = FromEnv(env(map[string]string{"STORE": "sqlite", "JWT_SECRET": "s", "PAYHERO_CHANNEL_ID": "1",
		"PAYHERO_WEBHOOK_SECRET": "w"}))
	assert.ErrorContains(t, err, `STORE must be postgres or memory, got "sqlite"`)
}

func TestDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/umoja",
		DatabaseURL(env(map[string]string{"DB_USER": "u", "DB_PASSWORD": "p", "DB_HOST": "db", "DB_NAME": "umoja"})))
	assert.Equal(t, "postgres://x", DatabaseURL(env(map[string]string{"DATABASE_URL": "postgres://x", "DB_HOST": "db"})))
}
