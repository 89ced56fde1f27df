package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/metrics"
)

// GatewayConfig is the Payhero account this process charges through.
type GatewayConfig struct {
	BaseURL        string
	BasicAuthToken string
	ChannelID      int
	Provider       string
	CallbackURL    string
	WebhookSecret  string
	AllowUnsigned  bool
	Timeout        time.Duration
}

// ChargeRequest is one STK push.
type ChargeRequest struct {
	Amount       int64
	Phone        string
	Reference    string
	CustomerName string
}

type ChargeResult struct {
	CheckoutID string
	Status     string
}

// Gateway initiates mobile-money charges.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Payhero is the HTTP client for the Payhero payments API.
type Payhero struct {
	cfg    GatewayConfig
	client *http.Client
}

func NewPayhero(cfg GatewayConfig) *Payhero {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = "m-pesa"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Payhero{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type payheroRequest struct {
	Amount            int64  `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         int    `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CustomerName      string `json:"customer_name"`
	CallbackURL       string `json:"callback_url"`
}

type payheroResponse struct {
	Success           bool   `json:"success"`
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ErrorMessage      string `json:"error_message"`
	Message           string `json:"message"`
}

// Charge posts to /api/v2/payments. Transport failures and 5xx answers are
// GatewayUnavailable; any other non-201 answer is GatewayRejected.
func (p *Payhero) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(payheroRequest{
		Amount:            req.Amount,
		PhoneNumber:       req.Phone,
		ChannelID:         p.cfg.ChannelID,
		Provider:          p.cfg.Provider,
		ExternalReference: req.Reference,
		CustomerName:      req.CustomerName,
		CallbackURL:       p.cfg.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encode charge request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/v2/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+p.cfg.BasicAuthToken)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("unavailable").Inc()
		return nil, domain.GatewayUnavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("unavailable").Inc()
		return nil, domain.GatewayUnavailable(err)
	}

	var parsed payheroResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 500 {
		metrics.GatewayRequests.WithLabelValues("unavailable").Inc()
		return nil, domain.GatewayUnavailable(fmt.Errorf("status %d: %s", resp.StatusCode, gatewayMessage(parsed, raw)))
	}
	if resp.StatusCode != http.StatusCreated {
		metrics.GatewayRequests.WithLabelValues("rejected").Inc()
		return nil, domain.GatewayRejected("payhero rejected the charge (status %d): %s", resp.StatusCode, gatewayMessage(parsed, raw))
	}
	if jsonErr != nil {
		metrics.GatewayRequests.WithLabelValues("rejected").Inc()
		return nil, domain.GatewayRejected("payhero returned an unreadable body: %v", jsonErr)
	}

	checkout := parsed.CheckoutRequestID
	if checkout == "" {
		checkout = parsed.Reference
	}
	if checkout == "" {
		metrics.GatewayRequests.WithLabelValues("rejected").Inc()
		return nil, domain.GatewayRejected("payhero response carried no checkout reference")
	}

	metrics.GatewayRequests.WithLabelValues("accepted").Inc()
	return &ChargeResult{CheckoutID: checkout, Status: parsed.Status}, nil
}

func gatewayMessage(p payheroResponse, raw []byte) string {
	switch {
	case p.ErrorMessage != "":
		return p.ErrorMessage
	case p.Message != "":
		return p.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "no message"
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

// IsTimeout reports whether err came from the request deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
