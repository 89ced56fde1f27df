// Package auth serves signup, login, password change and the current user.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/respond"
	"github.com/sudo-init-do/umoja/internal/store"
)

type Handler struct {
	store           store.Store
	tokens          *middleware.Tokens
	bootstrapSecret string
}

func NewHandler(st store.Store, tokens *middleware.Tokens, bootstrapSecret string) *Handler {
	return &Handler{store: st, tokens: tokens, bootstrapSecret: bootstrapSecret}
}

// Register mounts the public endpoints on g and /me behind auth.
func (h *Handler) Register(g *echo.Group, auth echo.MiddlewareFunc) {
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.POST("/admin/bootstrap", h.BootstrapAdmin)
	g.GET("/me", h.Me, auth)
	g.POST("/password", h.ChangePassword, auth)
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// ===== Signup =====
func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return respond.BadRequest(c, "invalid request")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.Name == "":
		return respond.Error(c, domain.Validation("name is required"))
	case !ValidEmail(req.Email):
		return respond.Error(c, domain.Validation("a valid email is required"))
	case len(req.Password) < 6:
		return respond.Error(c, domain.Validation("password must be at least 6 characters"))
	case req.Role != domain.RoleFarmer && req.Role != domain.RoleBroker:
		return respond.Error(c, domain.Validation("role must be farmer or broker"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return respond.Error(c, err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Role:         req.Role,
		Phone:        strings.TrimSpace(req.Phone),
		CreatedAt:    time.Now().UTC(),

		PaymentPreference:  domain.PreferMpesa,
		EmailNotifications: true,
		SMSNotifications:   true,
	}
	ctx := c.Request().Context()
	err = h.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return respond.Error(c, err)
	}

	signed, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return respond.Error(c, err)
	}
	slog.InfoContext(ctx, "user signed up", "user_id", user.ID, "role", user.Role)
	return c.JSON(http.StatusCreated, TokenResponse{Token: signed, User: user})
}

// ValidEmail reports whether s is a bare address with no display name.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ===== Login =====
func (h *Handler) Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return respond.BadRequest(c, "invalid request")
	}

	ctx := c.Request().Context()
	var user *domain.User
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
		return err
	})
	if domain.KindOf(err) == domain.KindNotFound {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return respond.Error(c, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	signed, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: signed, User: user})
}

// Me returns the currently authenticated user's profile
func (h *Handler) Me(c echo.Context) error {
	userID, _ := middleware.Actor(c)
	ctx := c.Request().Context()
	var user *domain.User
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ===== Change password =====
func (h *Handler) ChangePassword(c echo.Context) error {
	userID, _ := middleware.Actor(c)
	req := new(ChangePasswordRequest)
	if err := c.Bind(req); err != nil {
		return respond.BadRequest(c, "invalid request")
	}
	switch {
	case len(req.NewPassword) < 6:
		return respond.Error(c, domain.Validation("new password must be at least 6 characters"))
	case req.NewPassword == req.CurrentPassword:
		return respond.Error(c, domain.Validation("new password must differ from the current one"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return respond.Error(c, err)
	}

	ctx := c.Request().Context()
	wrongPassword := false
	err = h.store.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
			wrongPassword = true
			return nil
		}
		user.PasswordHash = string(hashed)
		user.UpdatedAt = time.Now().UTC()
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return respond.Error(c, err)
	}
	if wrongPassword {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}
	slog.InfoContext(ctx, "password changed", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

type BootstrapAdminRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// BootstrapAdmin promotes an existing user to admin when the caller knows
// ADMIN_BOOTSTRAP_SECRET. Disabled when the secret is unset.
func (h *Handler) BootstrapAdmin(c echo.Context) error {
	req := new(BootstrapAdminRequest)
	if err := c.Bind(req); err != nil {
		return respond.BadRequest(c, "invalid request")
	}
	if h.bootstrapSecret == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "bootstrap disabled"})
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.bootstrapSecret)) != 1 {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid secret"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return respond.Error(c, domain.Validation("email required"))
	}

	ctx := c.Request().Context()
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		return tx.SetUserRole(ctx, email, domain.RoleAdmin)
	})
	if err != nil {
		return respond.Error(c, err)
	}
	slog.WarnContext(ctx, "user promoted to admin via bootstrap", "email", email)
	return c.JSON(http.StatusOK, echo.Map{"message": "user promoted to admin", "email": email})
}
