// Package respond turns domain errors into JSON responses.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/umoja/internal/domain"
)

// Status maps an error kind to its HTTP status.
func Status(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindSignatureInvalid:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindInsufficientInventory, domain.KindConflict:
		return http.StatusConflict
	case domain.KindGatewayRejected:
		return http.StatusBadGateway
	case domain.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error writes err as {"error", "code"}. Unclassified errors are logged and
// hidden behind a generic message.
func Error(c echo.Context, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error", "code": "internal"})
	}

	body := echo.Map{"error": de.Error(), "code": string(de.Kind)}
	if domain.Retryable(err) {
		body["retryable"] = true
	}
	return c.JSON(Status(de.Kind), body)
}

// BadRequest reports an unreadable request body or parameter.
func BadRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": string(domain.KindValidation)})
}
