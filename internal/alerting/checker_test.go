package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestOp_Match(t *testing.T) {
	tests := []struct {
		name      string
		op        Op
		value     float64
		threshold float64
		expected  bool
	}{
		{"gt true", OpGT, 61, 60, true},
		{"gt false on equal", OpGT, 60, 60, false},
		{"ge true on equal", OpGE, 60, 60, true},
		{"lt true", OpLT, 5, 10, true},
		{"le false", OpLE, 11, 10, false},
		{"eq true", OpEQ, 1, 1, true},
		{"eq false", OpEQ, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.op.Match(tt.value, tt.threshold))
		})
	}
}

func samplesAt(base time.Time, offsets []time.Duration, values []float64) []domain.Sample {
	out := make([]domain.Sample, len(offsets))
	for i := range offsets {
		out[i] = domain.Sample{Timestamp: base.Add(offsets[i]), Value: values[i]}
	}
	return out
}

func TestSustainedFor(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	above := func(v float64) bool { return v > 90 }
	minute := time.Minute

	tests := []struct {
		name     string
		offsets  []time.Duration
		values   []float64
		expected time.Duration
	}{
		{
			// условие держится только с t2: результат t4-t2, не t4-t0
			name:     "break excludes preceding gap",
			offsets:  []time.Duration{0, 1 * minute, 2 * minute, 3 * minute, 4 * minute},
			values:   []float64{95, 50, 95, 96, 97},
			expected: 2 * minute,
		},
		{
			name:     "all samples match",
			offsets:  []time.Duration{0, 2 * minute, 5 * minute},
			values:   []float64{95, 96, 97},
			expected: 5 * minute,
		},
		{
			name:     "newest sample does not match",
			offsets:  []time.Duration{0, 1 * minute},
			values:   []float64{95, 10},
			expected: 0,
		},
		{
			name:     "single matching sample",
			offsets:  []time.Duration{0},
			values:   []float64{95},
			expected: 0,
		},
		{
			name:     "empty history",
			offsets:  nil,
			values:   nil,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := samplesAt(base, tt.offsets, tt.values)
			assert.Equal(t, tt.expected, sustainedFor(history, above))
		})
	}
}

func TestThresholdChecker_Evaluate(t *testing.T) {
	rule := Rule{
		Kind:       "cpu_temp_high",
		DeviceType: "cpu",
		Label:      "temp",
		Op:         OpGT,
		Threshold:  60,
		Message:    "CPU {{.Device.Name}}: {{printf \"%.1f\" .Reading.Value}}C over {{.Threshold}}C",
	}
	checker, err := newThresholdChecker(rule)
	assert.NoError(t, err)

	device := domain.Device{Name: "cpu", Type: "cpu", Enabled: true}

	triggered, _, err := checker.Evaluate(context.Background(), domain.Reading{DeviceName: "cpu", Label: "temp", Value: 40}, device)
	assert.NoError(t, err)
	assert.False(t, triggered)

	triggered, msg, err := checker.Evaluate(context.Background(), domain.Reading{DeviceName: "cpu", Label: "temp", Value: 65}, device)
	assert.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, "CPU cpu: 65.0C over 60C", msg)
}

func TestThresholdChecker_InvalidTemplate(t *testing.T) {
	rule := Rule{
		Kind:       "broken",
		DeviceType: "cpu",
		Label:      "temp",
		Op:         OpGT,
		Threshold:  60,
		Message:    "{{.Device.Name",
	}
	_, err := newThresholdChecker(rule)
	assert.Error(t, err)
}

type fakeHistory struct {
	samples []domain.Sample
	err     error
	filter  domain.RangeFilter
}

func (f *fakeHistory) Range(_ context.Context, _ domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error) {
	f.filter = filter
	return f.samples, f.err
}

func sustainedRule() Rule {
	return Rule{
		Kind:        "cpu_load_sustained",
		DeviceType:  "cpu",
		Label:       "load",
		Op:          OpGT,
		Threshold:   90,
		MinDuration: Duration(5 * time.Minute),
		Message:     "load high on {{.Device.Name}}",
	}
}

func TestSustainedChecker_TriggersOnlyAfterMinDuration(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	device := domain.Device{Name: "cpu", Type: "cpu", Enabled: true}
	reading := domain.Reading{DeviceName: "cpu", Label: "load", Value: 95}

	t.Run("held long enough", func(t *testing.T) {
		history := &fakeHistory{samples: samplesAt(base,
			[]time.Duration{0, 3 * time.Minute, 6 * time.Minute},
			[]float64{95, 96, 97})}
		checker, err := newSustainedChecker(sustainedRule(), history, 24*time.Hour)
		assert.NoError(t, err)

		triggered, msg, err := checker.Evaluate(context.Background(), reading, device)
		assert.NoError(t, err)
		assert.True(t, triggered)
		assert.Equal(t, "load high on cpu", msg)
		assert.Equal(t, []string{"cpu"}, history.filter.DeviceNames)
		assert.Equal(t, []string{"load"}, history.filter.Labels)
	})

	t.Run("held too short", func(t *testing.T) {
		history := &fakeHistory{samples: samplesAt(base,
			[]time.Duration{0, time.Minute, 2 * time.Minute},
			[]float64{95, 96, 97})}
		checker, err := newSustainedChecker(sustainedRule(), history, 24*time.Hour)
		assert.NoError(t, err)

		triggered, _, err := checker.Evaluate(context.Background(), reading, device)
		assert.NoError(t, err)
		assert.False(t, triggered)
	})

	t.Run("empty history never triggers", func(t *testing.T) {
		checker, err := newSustainedChecker(sustainedRule(), &fakeHistory{}, 24*time.Hour)
		assert.NoError(t, err)

		triggered, _, err := checker.Evaluate(context.Background(), reading, device)
		assert.NoError(t, err)
		assert.False(t, triggered)
	})

	t.Run("current value below threshold skips history", func(t *testing.T) {
		history := &fakeHistory{err: errors.New("should not be called")}
		checker, err := newSustainedChecker(sustainedRule(), history, 24*time.Hour)
		assert.NoError(t, err)

		triggered, _, err := checker.Evaluate(context.Background(), domain.Reading{DeviceName: "cpu", Label: "load", Value: 10}, device)
		assert.NoError(t, err)
		assert.False(t, triggered)
	})

	t.Run("history error propagates", func(t *testing.T) {
		history := &fakeHistory{err: errors.New("db down")}
		checker, err := newSustainedChecker(sustainedRule(), history, 24*time.Hour)
		assert.NoError(t, err)

		_, _, err = checker.Evaluate(context.Background(), reading, device)
		assert.Error(t, err)
	})
}
