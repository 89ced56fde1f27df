package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/umoja/internal/domain"
)

// Context keys set by JWT.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token carrying user_id, role and exp.
func (t *Tokens) Issue(userID, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     t.now().Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates a token and returns its subject and role.
func (t *Tokens) Parse(tokenStr string) (userID, role string, err error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired token")
	}
	userID, _ = claims["user_id"].(string)
	role, _ = claims["role"].(string)
	if userID == "" || role == "" {
		return "", "", errors.New("invalid token claims")
	}
	return userID, role, nil
}

// JWT requires a Bearer token and stores user_id and role on the context.
func JWT(tokens *Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or invalid Authorization header"})
			}
			userID, role, err := tokens.Parse(strings.TrimSpace(header[len(prefix):]))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set(UserIDKey, userID)
			c.Set(RoleKey, role)
			return next(c)
		}
	}
}

func forbidden(c echo.Context, msg string) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": msg, "code": string(domain.KindUnauthorized)})
}

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: g.POST(..., RequireRoles(domain.RoleFarmer))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(RoleKey).(string)
			if role == "" {
				return forbidden(c, "role missing")
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return forbidden(c, "access denied")
		}
	}
}

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRoles(domain.RoleAdmin)(next)
}

// Actor returns the authenticated user id and role.
func Actor(c echo.Context) (userID, role string) {
	userID, _ = c.Get(UserIDKey).(string)
	role, _ = c.Get(RoleKey).(string)
	return userID, role
}
