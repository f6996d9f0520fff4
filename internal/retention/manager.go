package retention

import (
	"context"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"go.uber.org/zap"
)

// Store — операция удаления, нужная ретеншену
type Store interface {
	DeleteBefore(ctx context.Context, tier domain.Tier, cutoff time.Time) (int64, error)
}

// Manager удаляет строки старше окна хранения своего уровня.
// Состояния нет, повторный и параллельный запуск безопасны.
type Manager struct {
	store   Store
	windows map[domain.Tier]time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewManager(store Store, windows map[domain.Tier]time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		windows: windows,
		logger:  logger,
		now:     time.Now,
	}
}

// Run выполняет один проход по всем уровням; ошибка одного уровня не мешает остальным
func (m *Manager) Run(ctx context.Context) {
	now := m.now().UTC()
	for _, tier := range domain.Tiers {
		window, ok := m.windows[tier]
		if !ok {
			continue
		}
		cutoff := now.Add(-window)

		deleted, err := m.store.DeleteBefore(ctx, tier, cutoff)
		if err != nil {
			metrics.RetentionRuns.WithLabelValues(string(tier), "error").Inc()
			m.logger.Error("retention: delete failed",
				zap.String("tier", string(tier)),
				zap.Time("cutoff", cutoff),
				zap.Error(err))
			continue
		}

		metrics.RetentionRuns.WithLabelValues(string(tier), "ok").Inc()
		metrics.RetentionDeletedRows.WithLabelValues(string(tier)).Add(float64(deleted))

		if deleted > 0 {
			m.logger.Info("retention: old samples deleted",
				zap.String("tier", string(tier)),
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff))
		}
	}
}
