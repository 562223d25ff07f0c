package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GTDGit/marketplace_api/internal/utils"
)

// Webhook request headers.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Marketplace-Event"
	HeaderTimestamp = "X-Marketplace-Timestamp"
)

// WebhookSender posts signed events to provider webhook URLs.
type WebhookSender struct {
	httpClient *http.Client
}

// NewWebhookSender constructs a WebhookSender with the given timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{httpClient: &http.Client{Timeout: timeout}}
}

// buildWebhookBody constructs the JSON body sent to providers.
func buildWebhookBody(ev Event) ([]byte, error) {
	type body struct {
		Event     string `json:"event"`
		Data      Event  `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	return json.Marshal(body{
		Event:     ev.Type,
		Data:      ev,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Send delivers the event. Any non-2xx answer is an error so the task retries.
func (s *WebhookSender) Send(ctx context.Context, url, secret string, ev Event) error {
	payload, err := buildWebhookBody(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sha256="+utils.GenerateSignature(payload, secret))
	req.Header.Set(HeaderEvent, ev.Type)
	req.Header.Set(HeaderTimestamp, time.Now().Format(time.RFC3339))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}
