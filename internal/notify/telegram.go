package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TelegramSender отправляет сообщения через Telegram Bot API
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
	logger *zap.Logger
}

func NewTelegramSender(token, chatID string, timeout time.Duration, logger *zap.Logger) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, message string) error {
	if s.token == "" || s.chatID == "" {
		return fmt.Errorf("telegram token or chat id not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    s.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram responded with status %d: %s", resp.StatusCode, body)
	}

	s.logger.Debug("Telegram message sent")
	return nil
}
