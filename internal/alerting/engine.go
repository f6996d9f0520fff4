package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher разносит готовое сообщение по включённым отправителям
type Dispatcher interface {
	SendAll(ctx context.Context, message string)
}

// Engine прогоняет батч свежих показаний через зарегистрированные чекеры.
// Каждая пара (показание, чекер) оценивается в своей горутине; паника или
// ошибка одного чекера не трогает остальные оценки батча.
type Engine struct {
	registry   *Registry
	throttle   *Throttle
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewEngine(registry *Registry, throttle *Throttle, dispatcher Dispatcher, logger *zap.Logger) *Engine {
	return &Engine{
		registry:   registry,
		throttle:   throttle,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Process оценивает батч. Показания без известного устройства пропускаются.
// Вызывающий обычно запускает Process отдельной горутиной, чтобы путь
// ингеста не ждал чекеры и доставку.
func (e *Engine) Process(ctx context.Context, readings []domain.Reading, devices []domain.Device) {
	deviceMap := make(map[string]domain.Device, len(devices))
	for _, d := range devices {
		deviceMap[d.Name] = d
	}

	var wg sync.WaitGroup
	for _, reading := range readings {
		device, ok := deviceMap[reading.DeviceName]
		if !ok {
			continue
		}
		for _, checker := range e.registry.Lookup(device.Type, reading.Label) {
			wg.Add(1)
			go func(checker Checker, reading domain.Reading, device domain.Device) {
				defer wg.Done()
				e.evaluate(ctx, checker, reading, device)
			}(checker, reading, device)
		}
	}
	wg.Wait()
}

func (e *Engine) evaluate(ctx context.Context, checker Checker, reading domain.Reading, device domain.Device) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AlertsEvaluated.WithLabelValues(checker.Kind(), "panic").Inc()
			e.logger.Error("checker panicked",
				zap.String("checker", checker.Kind()),
				zap.String("device", device.Name),
				zap.Any("panic", r))
		}
	}()

	triggered, message, err := checker.Evaluate(ctx, reading, device)
	if err != nil {
		metrics.AlertsEvaluated.WithLabelValues(checker.Kind(), "error").Inc()
		e.logger.Error("checker evaluation failed",
			zap.String("checker", checker.Kind()),
			zap.String("device", device.Name),
			zap.String("label", reading.Label),
			zap.Error(err))
		return
	}
	if !triggered {
		metrics.AlertsEvaluated.WithLabelValues(checker.Kind(), "ok").Inc()
		return
	}
	metrics.AlertsEvaluated.WithLabelValues(checker.Kind(), "triggered").Inc()

	// Окно занимается до отправки: сбой доставки не открывает его заново
	if !e.throttle.Allow(device.Name, checker.Kind()) {
		metrics.AlertsThrottled.WithLabelValues(checker.Kind()).Inc()
		e.logger.Debug("alert throttled",
			zap.String("checker", checker.Kind()),
			zap.String("device", device.Name))
		return
	}

	alertID := uuid.New()
	metrics.AlertsFired.WithLabelValues(checker.Kind()).Inc()
	e.logger.Info("ALERT",
		zap.String("alert_id", alertID.String()),
		zap.String("checker", checker.Kind()),
		zap.String("device", device.Name),
		zap.String("label", reading.Label),
		zap.Float64("value", reading.Value),
		zap.Time("time", time.Now().UTC()),
		zap.String("message", message))

	e.dispatcher.SendAll(ctx, message)
}
