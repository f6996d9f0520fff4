package collector

import (
	"context"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"go.uber.org/zap"
)

type MetricWriter interface {
	AppendBatch(ctx context.Context, deviceType string, readings []domain.Reading) (int, error)
	EnabledDevicesByType(ctx context.Context, devType string) ([]domain.Device, error)
}

type AlertProcessor interface {
	Process(ctx context.Context, readings []domain.Reading, devices []domain.Device)
}

// Runner — один цикл опроса для типа устройств: собрать, отфильтровать по
// включённым устройствам, записать, отдать батч алертингу
type Runner struct {
	collector Collector
	writer    MetricWriter
	alerts    AlertProcessor
	logger    *zap.Logger
}

func NewRunner(collector Collector, writer MetricWriter, alerts AlertProcessor, logger *zap.Logger) *Runner {
	return &Runner{
		collector: collector,
		writer:    writer,
		alerts:    alerts,
		logger:    logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	devType := r.collector.DeviceType()

	devices, err := r.writer.EnabledDevicesByType(ctx, devType)
	if err != nil {
		metrics.CollectorRuns.WithLabelValues(devType, "error").Inc()
		return err
	}
	if len(devices) == 0 {
		r.logger.Warn("No enabled devices to scan", zap.String("device_type", devType))
		return nil
	}

	readings, err := r.collector.Collect(ctx)
	if err != nil {
		// Граница сбора: причина неинтересна ядру, цикл просто пустой
		metrics.CollectorRuns.WithLabelValues(devType, "empty").Inc()
		r.logger.Warn("Collector produced nothing",
			zap.String("device_type", devType),
			zap.Error(err))
		return nil
	}

	enabled := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		enabled[d.Name] = struct{}{}
	}
	filtered := readings[:0]
	for _, item := range readings {
		if _, ok := enabled[item.DeviceName]; ok {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		metrics.CollectorRuns.WithLabelValues(devType, "empty").Inc()
		r.logger.Warn("Nothing to write", zap.String("device_type", devType))
		return nil
	}

	if _, err := r.writer.AppendBatch(ctx, devType, filtered); err != nil {
		metrics.CollectorRuns.WithLabelValues(devType, "error").Inc()
		return err
	}
	metrics.CollectorRuns.WithLabelValues(devType, "ok").Inc()

	// Оценка алертов не держит путь ингеста
	batch := append([]domain.Reading(nil), filtered...)
	go r.alerts.Process(context.WithoutCancel(ctx), batch, devices)

	return nil
}
