package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/store"
)

func newServer(t *testing.T, bootstrapSecret string) (*echo.Echo, *middleware.Tokens) {
	t.Helper()
	tokens := middleware.NewTokens("test-secret", time.Hour)
	e := echo.New()
	NewHandler(store.NewMemory(), tokens, bootstrapSecret).Register(e.Group("/auth"), middleware.JWT(tokens))
	return e, tokens
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postAuth(e *echo.Echo, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSignupLoginMe(t *testing.T) {
	e, tokens := newServer(t, "")

	rec := post(e, "/auth/signup", `{"name":"Wanjiku","email":" Wanjiku@Example.com ","password":"shamba2024","role":"farmer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signup TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	assert.Equal(t, "wanjiku@example.com", signup.User.Email)
	assert.NotContains(t, rec.Body.String(), "shamba2024")
	id, role, err := tokens.Parse(signup.Token)
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, id)
	assert.Equal(t, domain.RoleFarmer, role)

	rec = post(e, "/auth/signup", `{"name":"Again","email":"wanjiku@example.com","password":"shamba2024","role":"broker"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(e, "/auth/login", `{"email":"WANJIKU@example.com","password":"shamba2024"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var login TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	assert.Equal(t, http.StatusUnauthorized, post(e, "/auth/login", `{"email":"wanjiku@example.com","password":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(e, "/auth/login", `{"email":"nobody@example.com","password":"x"}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+login.Token)
	me := httptest.NewRecorder()
	e.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), signup.User.ID)
	assert.True(t, signup.User.EmailNotifications)
	assert.True(t, signup.User.SMSNotifications)
	assert.Equal(t, domain.PreferMpesa, signup.User.PaymentPreference)
}

func TestChangePassword(t *testing.T) {
	e, _ := newServer(t, "")
	rec := post(e, "/auth/signup", `{"name":"Otieno","email":"otieno@example.com","password":"lorry2024","role":"broker"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signup TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong current", `{"current_password":"guess","new_password":"newlorry1"}`, http.StatusUnauthorized},
		{"too short", `{"current_password":"lorry2024","new_password":"abc"}`, http.StatusBadRequest},
		{"unchanged", `{"current_password":"lorry2024","new_password":"lorry2024"}`, http.StatusBadRequest},
		{"not json", `{"current_password":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAuth(e, "/auth/password", signup.Token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, http.StatusOK, post(e, "/auth/login", `{"email":"otieno@example.com","password":"lorry2024"}`).Code)

	assert.Equal(t, http.StatusUnauthorized, post(e, "/auth/password", `{"current_password":"lorry2024","new_password":"newlorry1"}`).Code)

	rec = postAuth(e, "/auth/password", signup.Token, `{"current_password":"lorry2024","new_password":"newlorry1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, post(e, "/auth/login", `{"email":"otieno@example.com","password":"lorry2024"}`).Code)
	assert.Equal(t, http.StatusOK, post(e, "/auth/login", `{"email":"otieno@example.com","password":"newlorry1"}`).Code)
}

func TestSignupValidation(t *testing.T) {
	e, _ := newServer(t, "")
	for name, body := range map[string]string{
		"missing name": `{"email":"a@example.com","password":"secret1","role":"farmer"}`,
		"bad email":    `{"name":"A","email":"not-an-email","password":"secret1","role":"farmer"}`,
		"short pass":   `{"name":"A","email":"a@example.com","password":"123","role":"farmer"}`,
		"admin role":   `{"name":"A","email":"a@example.com","password":"secret1","role":"admin"}`,
		"unknown role": `{"name":"A","email":"a@example.com","password":"secret1","role":"trader"}`,
		"not json":     `{"name":`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, post(e, "/auth/signup", body).Code)
		})
	}
}

func TestBootstrapAdmin(t *testing.T) {
	e, _ := newServer(t, "let-me-in")
	require.Equal(t, http.StatusCreated,
		post(e, "/auth/signup", `{"name":"Ops","email":"ops@example.com","password":"secret1","role":"broker"}`).Code)

	assert.Equal(t, http.StatusForbidden, post(e, "/auth/admin/bootstrap", `{"email":"ops@example.com","secret":"guess"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(e, "/auth/admin/bootstrap", `{"email":"ghost@example.com","secret":"let-me-in"}`).Code)

	rec := post(e, "/auth/admin/bootstrap", `{"email":"ops@example.com","secret":"let-me-in"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post(e, "/auth/login", `{"email":"ops@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)

	disabled, _ := newServer(t, "")
	assert.Equal(t, http.StatusForbidden, post(disabled, "/auth/admin/bootstrap", `{"email":"ops@example.com","secret":""}`).Code)
}
