package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
)

func TestPayheroCharge(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     domain.Kind
		checkout string
	}{
		{"accepted", http.StatusCreated, `{"success":true,"status":"QUEUED","CheckoutRequestID":"ws_CO_1"}`, "", "ws_CO_1"},
		{"reference only", http.StatusCreated, `{"success":true,"reference":"PH-9"}`, "", "PH-9"},
		{"no checkout id", http.StatusCreated, `{"success":true}`, domain.KindGatewayRejected, ""},
		{"unreadable success", http.StatusCreated, `<html>`, domain.KindGatewayRejected, ""},
		{"bad request", http.StatusBadRequest, `{"error_message":"insufficient float"}`, domain.KindGatewayRejected, ""},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad credentials"}`, domain.KindGatewayRejected, ""},
		{"server error", http.StatusBadGateway, `bad gateway`, domain.KindGatewayUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakePayhero{status: tt.status, body: tt.body}
			srv := httptest.NewServer(gw)
			defer srv.Close()

			p := NewPayhero(GatewayConfig{BaseURL: srv.URL + "/", BasicAuthToken: "tok", ChannelID: 7,
				CallbackURL: "https://umoja.example/webhook/payhero"})
			res, err := p.Charge(context.Background(), ChargeRequest{Amount: 250, Phone: "254712345678", Reference: "BID_x_1"})

			if tt.kind != "" {
				assert.Equal(t, tt.kind, domain.KindOf(err))
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.checkout, res.CheckoutID)
			req := gw.calls()[0]
			assert.Equal(t, "https://umoja.example/webhook/payhero", req.CallbackURL)
			assert.Equal(t, "m-pesa", req.Provider)
		})
	}
}

func TestPayheroCharge_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	p := NewPayhero(GatewayConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := p.Charge(context.Background(), ChargeRequest{Amount: 1, Phone: "254712345678", Reference: "BID_x_1"})
	assert.Equal(t, domain.KindGatewayUnavailable, domain.KindOf(err))
	assert.True(t, domain.Retryable(err))
}
