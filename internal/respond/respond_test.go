package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
)

func TestError(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{domain.Validation("quantity must be positive"), http.StatusBadRequest, "validation", false},
		{domain.SignatureInvalid("invalid signature"), http.StatusBadRequest, "signature_invalid", false},
		{domain.Unauthorized("not your bid"), http.StatusForbidden, "unauthorized", false},
		{domain.NotFound("bid not found"), http.StatusNotFound, "not_found", false},
		{domain.InvalidState("bid is rejected"), http.StatusConflict, "invalid_state", false},
		{domain.InsufficientInventory("only 40 left"), http.StatusConflict, "insufficient_inventory", false},
		{domain.Conflict("already paid"), http.StatusConflict, "conflict", false},
		{domain.GatewayRejected("bad phone"), http.StatusBadGateway, "gateway_rejected", false},
		{domain.GatewayUnavailable(errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, "gateway_unavailable", true},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal", false},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, Error(c, tt.err))

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			_, ok := body["retryable"]
			assert.Equal(t, tt.retryable, ok)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			}
		})
	}
}
