package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookSender отправляет сообщение JSON-постом на произвольный URL
type WebhookSender struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSender(url string, timeout time.Duration, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, message string) error {
	if s.url == "" {
		return fmt.Errorf("webhook url not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"message": message,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	s.logger.Debug("Webhook message sent", zap.String("url", s.url))
	return nil
}
