package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store — операции хранилища, нужные агрегации
type Store interface {
	MaxTimestamp(ctx context.Context, tier domain.Tier) (time.Time, bool, error)
	Watermark(ctx context.Context, stage string) (int64, error)
	SamplesAfter(ctx context.Context, tier domain.Tier, afterID int64, before time.Time) ([]domain.Sample, error)
	CommitAggregation(ctx context.Context, stage string, target domain.Tier, samples []domain.Sample, maxSourceID int64) error
}

// Stage описывает одну ступень свёртки: источник, цель и ширина корзины
type Stage struct {
	Name        string
	Source      domain.Tier
	Target      domain.Tier
	BucketWidth time.Duration
}

// Stages возвращает стандартные ступени raw -> hourly -> history
func Stages() []Stage {
	return []Stage{
		{Name: "raw_to_hourly", Source: domain.TierRaw, Target: domain.TierHourly, BucketWidth: time.Hour},
		{Name: "hourly_to_history", Source: domain.TierHourly, Target: domain.TierHistory, BucketWidth: 24 * time.Hour},
	}
}

// Engine инкрементально сворачивает мелкий уровень в крупный по водяному знаку.
// Запуски одной ступени сериализуются через singleflight, разные ступени независимы.
type Engine struct {
	store  Store
	logger *zap.Logger
	group  singleflight.Group
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
	}
}

// RunStage выполняет один проход ступени. Параллельный вызов той же ступени
// присоединяется к уже идущему проходу вместо запуска второго.
func (e *Engine) RunStage(ctx context.Context, stage Stage) error {
	_, err, _ := e.group.Do(stage.Name, func() (any, error) {
		return nil, e.runStage(ctx, stage)
	})
	if err != nil {
		metrics.AggregationRuns.WithLabelValues(stage.Name, "error").Inc()
		return err
	}
	metrics.AggregationRuns.WithLabelValues(stage.Name, "ok").Inc()
	return nil
}

type bucketKey struct {
	start    int64 // Unix seconds начала корзины
	deviceID int64
	label    string
}

type bucketAcc struct {
	sum   float64
	count int64
}

func (e *Engine) runStage(ctx context.Context, stage Stage) error {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues(stage.Name).Observe(time.Since(start).Seconds())
	}()

	maxTS, ok, err := e.store.MaxTimestamp(ctx, stage.Source)
	if err != nil {
		return err
	}
	if !ok {
		// Пустой источник — нечего сворачивать
		return nil
	}

	// Обрезаем до границы корзины: корзина, в которую ещё идут записи,
	// никогда не попадает в выборку, поэтому среднее не пересчитывается.
	cutoff := maxTS.UTC().Truncate(stage.BucketWidth)

	watermark, err := e.store.Watermark(ctx, stage.Name)
	if err != nil {
		return err
	}

	rows, err := e.store.SamplesAfter(ctx, stage.Source, watermark, cutoff)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		e.logger.Debug("aggregation: nothing to fold",
			zap.String("stage", stage.Name),
			zap.Int64("watermark", watermark))
		return nil
	}

	width := int64(stage.BucketWidth / time.Second)
	buckets := make(map[bucketKey]*bucketAcc)
	var maxID int64
	for _, row := range rows {
		key := bucketKey{
			start:    row.Timestamp.Unix() / width * width,
			deviceID: row.DeviceID,
			label:    row.Label,
		}
		acc := buckets[key]
		if acc == nil {
			acc = &bucketAcc{}
			buckets[key] = acc
		}
		acc.sum += row.Value
		acc.count++
		if row.ID > maxID {
			maxID = row.ID
		}
	}

	out := make([]domain.Sample, 0, len(buckets))
	for key, acc := range buckets {
		out = append(out, domain.Sample{
			Timestamp: time.Unix(key.start, 0).UTC(),
			DeviceID:  key.deviceID,
			Label:     key.label,
			Value:     acc.sum / float64(acc.count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Label < b.Label
	})

	// Вставка агрегатов и сдвиг водяного знака атомарны
	if err := e.store.CommitAggregation(ctx, stage.Name, stage.Target, out, maxID); err != nil {
		return err
	}

	metrics.AggregationRowsFolded.WithLabelValues(stage.Name).Add(float64(len(rows)))
	metrics.AggregationBucketsWritten.WithLabelValues(stage.Name).Add(float64(len(out)))

	e.logger.Info("aggregation stage completed",
		zap.String("stage", stage.Name),
		zap.Int("source_rows", len(rows)),
		zap.Int("buckets", len(out)),
		zap.Int64("watermark", maxID),
		zap.Time("cutoff", cutoff))

	return nil
}
