package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
)

func TestTokens(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	tok, err := tokens.Issue("u1", domain.RoleBroker)
	require.NoError(t, err)
	id, role, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	assert.Equal(t, domain.RoleBroker, role)

	_, _, err = NewTokens("other", time.Hour).Parse(tok)
	assert.Error(t, err)

	expired := NewTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("u1", domain.RoleBroker)
	require.NoError(t, err)
	_, _, err = tokens.Parse(old)
	assert.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"user_id": "u1", "role": domain.RoleAdmin, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = tokens.Parse(hs512)
	assert.Error(t, err, "only HS256 is accepted")

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1", "role": "farmer"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = tokens.Parse(noExp)
	assert.Error(t, err)
}

func TestJWTAndRoles(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	e := echo.New()
	g := e.Group("/farmer", JWT(tokens), RequireRoles(domain.RoleFarmer))
	g.GET("/whoami", func(c echo.Context) error {
		id, role := Actor(c)
		return c.String(http.StatusOK, id+":"+role)
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/farmer/whoami", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	farmer, _ := tokens.Issue("f1", domain.RoleFarmer)
	broker, _ := tokens.Issue("b1", domain.RoleBroker)

	rec := call("Bearer " + farmer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "f1:farmer", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, call("Bearer "+broker).Code)
	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Token "+farmer).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)
}

func TestAdminGuard(t *testing.T) {
	e := echo.New()
	h := AdminGuard(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for role, want := range map[string]int{domain.RoleAdmin: http.StatusNoContent, domain.RoleFarmer: http.StatusForbidden, "": http.StatusForbidden} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if role != "" {
			c.Set(RoleKey, role)
		}
		require.NoError(t, h(c))
		assert.Equal(t, want, rec.Code, role)
	}
}
