// Package notifier delivers operational alerts to an external webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers one short operational alert.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

const alertColor = 0xCC0000 // red

// WebhookNotifier posts alerts to a Discord-compatible webhook as a single
// embed, so failures stand out from plain chatter in the ops channel.
type WebhookNotifier struct {
	WebhookURL string

	// Client is replaceable in tests; defaults to a client with a short
	// timeout so a slow webhook never stalls the event consumer.
	Client *http.Client
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, title, body string) error {
	if n.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := struct {
		Embeds []embed `json:"embeds"`
	}{
		Embeds: []embed{{
			Title:       title,
			Description: body,
			Color:       alertColor,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

func (n *WebhookNotifier) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}

	return &http.Client{Timeout: 10 * time.Second}
}
