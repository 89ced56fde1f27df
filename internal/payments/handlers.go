package payments

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/respond"
)

// maxCallbackBytes bounds the webhook body read before verification.
const maxCallbackBytes = 64 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	brokerOnly := middleware.RequireRoles(domain.RoleBroker)
	parties := middleware.RequireRoles(domain.RoleFarmer, domain.RoleBroker, domain.RoleAdmin)

	e.POST("/webhook/payhero", h.Webhook)
	e.POST("/broker/bids/:id/payments", h.Initiate, auth, brokerOnly)
	e.POST("/payments/:id/confirm", h.Confirm, auth, brokerOnly)
	e.GET("/payments", h.List, auth, parties)
	e.GET("/payments/:id", h.Get, auth, parties)
}

type initiateRequest struct {
	Phone       string `json:"phone"`
	PhoneNumber string `json:"phone_number"`
}

// Initiate starts an M-Pesa charge for an accepted bid.
func (h *Handler) Initiate(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req initiateRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	phone := req.Phone
	if phone == "" {
		phone = req.PhoneNumber
	}
	payment, err := h.svc.Initiate(c.Request().Context(), brokerID, c.Param("id"), phone)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"payment": payment,
		"message": "Payment initiated. Complete the prompt on your phone.",
	})
}

// Webhook receives Payhero callbacks. The body is read raw so the signature
// covers exactly the bytes sent.
func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
	if err != nil {
		return respond.BadRequest(c, "unreadable body")
	}
	res, err := h.svc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(SignatureHeader))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type confirmRequest struct {
	TransactionRef string `json:"transaction_ref"`
}

// Confirm marks a pending payment paid after an out-of-band settlement.
func (h *Handler) Confirm(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	payment, err := h.svc.ManualConfirm(c.Request().Context(), brokerID, c.Param("id"), req.TransactionRef)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *Handler) List(c echo.Context) error {
	userID, role := middleware.Actor(c)
	hist, err := h.svc.History(c.Request().Context(), userID, role)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *Handler) Get(c echo.Context) error {
	userID, role := middleware.Actor(c)
	payment, err := h.svc.Get(c.Request().Context(), userID, role, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}
