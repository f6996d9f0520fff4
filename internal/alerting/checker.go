package alerting

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
)

// HistoryStore — чтение недавней истории метрик для sustained-правил
type HistoryStore interface {
	Range(ctx context.Context, tier domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error)
}

// Op — оператор сравнения значения с порогом
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
)

func (o Op) Valid() bool {
	switch o {
	case OpGT, OpGE, OpLT, OpLE, OpEQ:
		return true
	}
	return false
}

func (o Op) Match(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	}
	return false
}

// Checker оценивает одно показание для пары (тип устройства, метка)
type Checker interface {
	Kind() string
	DeviceType() string
	Label() string
	// Evaluate возвращает (сработало, текст уведомления, ошибка)
	Evaluate(ctx context.Context, reading domain.Reading, device domain.Device) (bool, string, error)
}

// messageContext — данные для шаблона уведомления
type messageContext struct {
	Device    domain.Device
	Reading   domain.Reading
	Threshold float64
	Timestamp time.Time
}

// thresholdChecker срабатывает при пересечении порога текущим значением
type thresholdChecker struct {
	kind       string
	deviceType string
	label      string
	op         Op
	threshold  float64
	tmpl       *template.Template
	now        func() time.Time
}

func newThresholdChecker(rule Rule) (*thresholdChecker, error) {
	tmpl, err := template.New(rule.Kind).Parse(rule.Message)
	if err != nil {
		return nil, fmt.Errorf("invalid message template for rule %q: %w", rule.Kind, err)
	}
	return &thresholdChecker{
		kind:       rule.Kind,
		deviceType: rule.DeviceType,
		label:      rule.Label,
		op:         rule.Op,
		threshold:  rule.Threshold,
		tmpl:       tmpl,
		now:        time.Now,
	}, nil
}

func (c *thresholdChecker) Kind() string       { return c.kind }
func (c *thresholdChecker) DeviceType() string { return c.deviceType }
func (c *thresholdChecker) Label() string      { return c.label }

func (c *thresholdChecker) Evaluate(_ context.Context, reading domain.Reading, device domain.Device) (bool, string, error) {
	if !c.op.Match(reading.Value, c.threshold) {
		return false, "", nil
	}
	msg, err := c.render(reading, device)
	if err != nil {
		return false, "", err
	}
	return true, msg, nil
}

func (c *thresholdChecker) render(reading domain.Reading, device domain.Device) (string, error) {
	var buf bytes.Buffer
	err := c.tmpl.Execute(&buf, messageContext{
		Device:    device,
		Reading:   reading,
		Threshold: c.threshold,
		Timestamp: c.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render message for rule %q: %w", c.kind, err)
	}
	return buf.String(), nil
}

// sustainedChecker срабатывает, только если условие держится непрерывно
// не меньше minDuration по недавней raw-истории
type sustainedChecker struct {
	*thresholdChecker
	minDuration time.Duration
	window      time.Duration
	history     HistoryStore
}

func newSustainedChecker(rule Rule, history HistoryStore, window time.Duration) (*sustainedChecker, error) {
	base, err := newThresholdChecker(rule)
	if err != nil {
		return nil, err
	}
	return &sustainedChecker{
		thresholdChecker: base,
		minDuration:      time.Duration(rule.MinDuration),
		window:           window,
		history:          history,
	}, nil
}

func (c *sustainedChecker) Evaluate(ctx context.Context, reading domain.Reading, device domain.Device) (bool, string, error) {
	if !c.op.Match(reading.Value, c.threshold) {
		return false, "", nil
	}

	since := c.now().UTC().Add(-c.window)
	samples, err := c.history.Range(ctx, domain.TierRaw, domain.RangeFilter{
		DeviceNames: []string{device.Name},
		Labels:      []string{c.label},
		From:        since,
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to read history for rule %q: %w", c.kind, err)
	}

	held := sustainedFor(samples, func(v float64) bool { return c.op.Match(v, c.threshold) })
	if held < c.minDuration {
		return false, "", nil
	}

	msg, err := c.render(reading, device)
	if err != nil {
		return false, "", err
	}
	return true, msg, nil
}

// sustainedFor считает, как долго условие держится непрерывно, идя от свежего
// образца назад. Дельта между соседними образцами засчитывается, только если
// условие выполняется на обоих концах; первый не прошедший образец обрывает
// счёт, и промежуток перед обрывом не учитывается. Пустая история — ноль.
func sustainedFor(ordered []domain.Sample, match func(float64) bool) time.Duration {
	var total time.Duration
	for i := len(ordered) - 1; i >= 0; i-- {
		if !match(ordered[i].Value) {
			break
		}
		if i > 0 && match(ordered[i-1].Value) {
			total += ordered[i].Timestamp.Sub(ordered[i-1].Timestamp)
		}
	}
	return total
}
