package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/charges/internal/core/domain"
)

// =============================================================================
// Webhook Notifier
// =============================================================================

// WebhookNotifier posts each receipt as JSON to a fixed URL.
type WebhookNotifier struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// WebhookConfig holds configuration for the webhook notifier.
type WebhookConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &WebhookNotifier{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// receiptPayload is the webhook request body.
type receiptPayload struct {
	Receipt domain.Receipt `json:"receipt"`
	SentAt  string         `json:"sent_at"`
}

// Send posts the receipt. Any status of 400 or above is an error.
func (n *WebhookNotifier) Send(ctx context.Context, receipt domain.Receipt) error {
	body, err := json.Marshal(receiptPayload{
		Receipt: receipt,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", receipt.ID)
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send receipt %s: %w", receipt.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("receipt webhook returned error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
