package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/umoja/internal/respond"
	"github.com/sudo-init-do/umoja/internal/store"
)

type Handler struct {
	store store.Store
}

func NewHandler(st store.Store) *Handler {
	return &Handler{store: st}
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	var stats *store.Stats
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		stats, err = tx.Stats(ctx)
		return err
	})
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
