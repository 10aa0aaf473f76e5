package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IntegrationHook triggers the secondary integration workflow for a target.
// The workflow itself is an external collaborator; the core only keys it by
// target name.
type IntegrationHook interface {
	Trigger(ctx context.Context, target string) error
}

// WebhookHook triggers the integration workflow over HTTP.
type WebhookHook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhookHook(url string) *WebhookHook {
	return &WebhookHook{URL: url, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (h *WebhookHook) Trigger(ctx context.Context, target string) error {
	body, _ := json.Marshal(map[string]string{"target": target})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("integration hook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("integration hook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NopHook is the disabled integration hook.
type NopHook struct{}

func (NopHook) Trigger(context.Context, string) error { return nil }
