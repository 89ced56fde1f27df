package user

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/respond"
)

type Handler struct {
	profiles *Profiles
}

func NewHandler(p *Profiles) *Handler {
	return &Handler{profiles: p}
}

func (h *Handler) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.PATCH("/me/profile", h.UpdateProfile, auth)
	e.GET("/users/:id/profile", h.PublicProfile)
}

// PATCH /me/profile
func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, _ := middleware.Actor(c)

	var req ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request")
	}

	ctx := c.Request().Context()
	u, err := h.profiles.Update(ctx, userID, req)
	if err != nil {
		return respond.Error(c, err)
	}
	slog.InfoContext(ctx, "profile updated", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated successfully", "user": u})
}

// GET /users/:id/profile
func (h *Handler) PublicProfile(c echo.Context) error {
	u, err := h.profiles.Public(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
