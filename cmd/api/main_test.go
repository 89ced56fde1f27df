package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/config"
	"github.com/sudo-init-do/umoja/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Store:     "memory",
		JWTSecret: "test-secret",
		JWTTTL:    time.Hour,
		Payhero: config.Payhero{
			BaseURL:       "http://127.0.0.1:1",
			ChannelID:     1,
			WebhookSecret: "whsec",
			Timeout:       time.Second,
		},
	}
}

func TestServerWiring(t *testing.T) {
	e := newServer(testConfig(), store.NewMemory(), &alerts.Recorder{})

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health", "").Code)
	assert.Equal(t, http.StatusOK, get("/ready", "").Code)
	assert.Equal(t, http.StatusOK, get("/marketplace/listings", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"name":"Otieno","email":"otieno@example.com","password":"secret1","role":"broker"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	metrics := get("/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "umoja_http_requests_total")

	assert.Equal(t, http.StatusUnauthorized, get("/admin/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get("/payments", "").Code)
	assert.Equal(t, http.StatusNotFound, get("/users/nobody/profile", "").Code)

	patch := httptest.NewRequest(http.MethodPatch, "/me/profile", strings.NewReader(`{"location":"Nakuru"}`))
	patch.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, patch)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatewayConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Payhero.AllowUnsigned = true
	gw := gatewayConfig(cfg.Payhero)
	assert.Equal(t, 1, gw.ChannelID)
	assert.True(t, gw.AllowUnsigned)
	assert.Equal(t, time.Second, gw.Timeout)
}
