package notify

import (
	"context"
	"fmt"

	"github.com/paulwinex/nas-monitor/internal/config"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"go.uber.org/zap"
)

// Sender — один транспорт доставки уведомлений
type Sender interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Dispatcher рассылает сообщение всем включённым отправителям.
// Доставка best-effort: без повторов, сбой одного отправителя не
// останавливает остальные.
type Dispatcher struct {
	senders []Sender
	logger  *zap.Logger
}

func NewDispatcher(senders []Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		senders: senders,
		logger:  logger,
	}
}

// NewDispatcherFromConfig собирает отправителей по явному списку провайдеров
func NewDispatcherFromConfig(cfg config.NotifyConfig, logger *zap.Logger) (*Dispatcher, error) {
	var senders []Sender
	for _, name := range cfg.Providers {
		switch name {
		case "telegram":
			senders = append(senders, NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.SendTimeout, logger))
		case "webhook":
			senders = append(senders, NewWebhookSender(cfg.WebhookURL, cfg.SendTimeout, logger))
		default:
			return nil, fmt.Errorf("unknown alert provider: %q", name)
		}
		logger.Info("Alert sender initialized", zap.String("sender", name))
	}
	return NewDispatcher(senders, logger), nil
}

func (d *Dispatcher) SendAll(ctx context.Context, message string) {
	for _, sender := range d.senders {
		if err := sender.Send(ctx, message); err != nil {
			metrics.NotificationsSent.WithLabelValues(sender.Name(), "error").Inc()
			d.logger.Error("Failed to send notification",
				zap.String("sender", sender.Name()),
				zap.Error(err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(sender.Name(), "ok").Inc()
	}
}
