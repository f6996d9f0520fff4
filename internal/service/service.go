package service

import (
	"context"
	"fmt"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"go.uber.org/zap"
)

type Repository interface {
	AppendSamples(ctx context.Context, ts time.Time, readings []domain.Reading) (inserted, dropped int, err error)
	Range(ctx context.Context, tier domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error)
	Latest(ctx context.Context, deviceTypes []string) (map[string]map[string]float64, error)
	UpsertDevice(ctx context.Context, name, devType string, details map[string]any) (*domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)
	EnabledDevicesByType(ctx context.Context, devType string) ([]domain.Device, error)
	SetDeviceEnabled(ctx context.Context, name string, enabled bool) (*domain.Device, error)
	HealthCheck(ctx context.Context) error
}

// MetricService — сервисный слой над хранилищем метрик и справочником устройств
type MetricService struct {
	repo   Repository
	logger *zap.Logger
}

func NewMetricService(repo Repository, logger *zap.Logger) *MetricService {
	return &MetricService{
		repo:   repo,
		logger: logger,
	}
}

func (s *MetricService) CheckDBConnection(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// AppendBatch пишет батч показаний в raw-уровень с единым timestamp.
// deviceType используется только для метрик и логов.
func (s *MetricService) AppendBatch(ctx context.Context, deviceType string, readings []domain.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(readings) == 0 {
		return 0, nil
	}

	inserted, dropped, err := s.repo.AppendSamples(ctx, time.Now().UTC(), readings)
	if err != nil {
		s.logger.Error("[MetricService] Failed to append samples batch",
			zap.String("device_type", deviceType),
			zap.Int("batch_size", len(readings)),
			zap.Error(err))
		return 0, err
	}

	metrics.SamplesIngested.WithLabelValues(deviceType).Add(float64(inserted))

	s.logger.Debug("[MetricService] Samples batch appended",
		zap.String("device_type", deviceType),
		zap.Int("inserted", inserted),
		zap.Int("dropped", dropped))

	return inserted, nil
}

// Range возвращает метрики уровня по фильтру, по возрастанию timestamp
func (s *MetricService) Range(ctx context.Context, tier domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier: %q", tier)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	data, err := s.repo.Range(ctx, tier, filter)
	if err != nil {
		s.logger.Error("[MetricService] Failed to query range",
			zap.String("tier", string(tier)),
			zap.Error(err))
		return nil, err
	}
	return data, nil
}

// Latest возвращает последние значения метрик: {device -> {label -> value}}
func (s *MetricService) Latest(ctx context.Context, deviceTypes []string) (map[string]map[string]float64, error) {
	data, err := s.repo.Latest(ctx, deviceTypes)
	if err != nil {
		s.logger.Error("[MetricService] Failed to query latest values",
			zap.Strings("device_types", deviceTypes),
			zap.Error(err))
		return nil, err
	}
	return data, nil
}

func (s *MetricService) UpsertDevice(ctx context.Context, name, devType string, details map[string]any) (*domain.Device, error) {
	if name == "" {
		return nil, fmt.Errorf("device name must not be empty")
	}
	return s.repo.UpsertDevice(ctx, name, devType, details)
}

func (s *MetricService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	return s.repo.ListDevices(ctx)
}

func (s *MetricService) EnabledDevicesByType(ctx context.Context, devType string) ([]domain.Device, error) {
	return s.repo.EnabledDevicesByType(ctx, devType)
}

// SetDeviceEnabled переключает устройство; (nil, nil) — устройство не найдено
func (s *MetricService) SetDeviceEnabled(ctx context.Context, name string, enabled bool) (*domain.Device, error) {
	d, err := s.repo.SetDeviceEnabled(ctx, name, enabled)
	if err != nil {
		s.logger.Error("[MetricService] Failed to toggle device",
			zap.String("device", name),
			zap.Error(err))
		return nil, err
	}
	return d, nil
}
