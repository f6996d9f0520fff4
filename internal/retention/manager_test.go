package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeStore struct {
	samples map[domain.Tier][]time.Time
	failFor map[domain.Tier]error
	cutoffs map[domain.Tier]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		samples: make(map[domain.Tier][]time.Time),
		failFor: make(map[domain.Tier]error),
		cutoffs: make(map[domain.Tier]time.Time),
	}
}

func (f *fakeStore) DeleteBefore(_ context.Context, tier domain.Tier, cutoff time.Time) (int64, error) {
	if err := f.failFor[tier]; err != nil {
		return 0, err
	}
	f.cutoffs[tier] = cutoff
	var kept []time.Time
	var deleted int64
	for _, ts := range f.samples[tier] {
		if ts.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ts)
	}
	f.samples[tier] = kept
	return deleted, nil
}

func TestManager_Run_DeletesOnlyExpired(t *testing.T) {
	store := newFakeStore()
	logger, _ := zap.NewDevelopment()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	old := now.Add(-4 * time.Hour)
	fresh := now.Add(-time.Hour)
	store.samples[domain.TierRaw] = []time.Time{old, fresh}

	manager := NewManager(store, map[domain.Tier]time.Duration{
		domain.TierRaw: 3 * time.Hour,
	}, logger)
	manager.now = func() time.Time { return now }

	manager.Run(context.Background())

	assert.Equal(t, []time.Time{fresh}, store.samples[domain.TierRaw])
	assert.Equal(t, now.Add(-3*time.Hour), store.cutoffs[domain.TierRaw])
}

func TestManager_Run_TierFailureIsolated(t *testing.T) {
	store := newFakeStore()
	logger, _ := zap.NewDevelopment()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store.failFor[domain.TierRaw] = errors.New("query failed")
	store.samples[domain.TierHourly] = []time.Time{now.Add(-10 * 24 * time.Hour)}

	manager := NewManager(store, map[domain.Tier]time.Duration{
		domain.TierRaw:    3 * time.Hour,
		domain.TierHourly: 7 * 24 * time.Hour,
	}, logger)
	manager.now = func() time.Time { return now }

	// Ошибка raw-уровня не мешает чистке hourly
	manager.Run(context.Background())
	assert.Empty(t, store.samples[domain.TierHourly])
}

func TestManager_Run_SkipsTiersWithoutWindow(t *testing.T) {
	store := newFakeStore()
	logger, _ := zap.NewDevelopment()
	store.samples[domain.TierHistory] = []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}

	manager := NewManager(store, map[domain.Tier]time.Duration{
		domain.TierRaw: time.Hour,
	}, logger)

	manager.Run(context.Background())
	assert.Len(t, store.samples[domain.TierHistory], 1)
}
