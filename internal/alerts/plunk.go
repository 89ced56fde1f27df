package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Mailer sends a plain text e-mail.
type Mailer interface {
	Send(ctx context.Context, env EmailEnvelope) error
}

// LogMailer writes e-mails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, env EmailEnvelope) error {
	slog.InfoContext(ctx, "email (not sent, mailer unconfigured)", "to", env.To, "subject", env.Subject)
	return nil
}

// Plunk sends through the Plunk transactional API.
type Plunk struct {
	APIKey string
	From   string
	APIURL string
	Client *http.Client
}

func NewPlunk(apiKey, from, apiURL string) *Plunk {
	if apiURL == "" {
		apiURL = "https://api.useplunk.com/v1/send"
	}
	return &Plunk{
		APIKey: apiKey,
		From:   from,
		APIURL: apiURL,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
}

func (p *Plunk) Send(ctx context.Context, env EmailEnvelope) error {
	b, err := json.Marshal(plunkSendBody{To: env.To, Subject: env.Subject, Body: env.Body, From: p.From})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil && len(body) > 0 {
			return fmt.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode, body)
		}
		return fmt.Errorf("plunk send failed: status=%d", resp.StatusCode)
	}
	return nil
}
