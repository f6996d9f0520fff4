package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubChecker struct {
	kind       string
	deviceType string
	label      string
	triggered  bool
	message    string
	err        error
	panics     bool

	mu    sync.Mutex
	calls int
}

func (c *stubChecker) Kind() string       { return c.kind }
func (c *stubChecker) DeviceType() string { return c.deviceType }
func (c *stubChecker) Label() string      { return c.label }

func (c *stubChecker) Evaluate(_ context.Context, _ domain.Reading, _ domain.Device) (bool, string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.panics {
		panic("boom")
	}
	return c.triggered, c.message, c.err
}

func (c *stubChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []string
}

func (d *recordingDispatcher) SendAll(_ context.Context, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
}

func (d *recordingDispatcher) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

func newTestEngine(dispatcher Dispatcher, checkers ...Checker) *Engine {
	logger, _ := zap.NewDevelopment()
	return NewEngine(NewRegistry(checkers...), NewThrottle(10*time.Minute), dispatcher, logger)
}

func TestEngine_Process_DispatchesTriggeredAlert(t *testing.T) {
	checker := &stubChecker{kind: "cpu_temp_high", deviceType: "cpu", label: "temp", triggered: true, message: "too hot"}
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher, checker)

	devices := []domain.Device{{Name: "cpu", Type: "cpu", Enabled: true}}
	readings := []domain.Reading{{DeviceName: "cpu", Label: "temp", Value: 70}}

	engine.Process(context.Background(), readings, devices)

	assert.Equal(t, []string{"too hot"}, dispatcher.sent())
	assert.Equal(t, 1, checker.callCount())
}

func TestEngine_Process_SkipsUnknownDevice(t *testing.T) {
	checker := &stubChecker{kind: "cpu_temp_high", deviceType: "cpu", label: "temp", triggered: true, message: "too hot"}
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher, checker)

	readings := []domain.Reading{{DeviceName: "ghost", Label: "temp", Value: 70}}
	engine.Process(context.Background(), readings, nil)

	assert.Empty(t, dispatcher.sent())
	assert.Zero(t, checker.callCount())
}

func TestEngine_Process_ThrottlesRepeatedAlert(t *testing.T) {
	checker := &stubChecker{kind: "cpu_temp_high", deviceType: "cpu", label: "temp", triggered: true, message: "too hot"}
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher, checker)

	devices := []domain.Device{{Name: "cpu", Type: "cpu", Enabled: true}}
	readings := []domain.Reading{{DeviceName: "cpu", Label: "temp", Value: 70}}

	engine.Process(context.Background(), readings, devices)
	engine.Process(context.Background(), readings, devices)

	// второй батч внутри окна не доставляется, хотя чекер отработал оба раза
	assert.Equal(t, []string{"too hot"}, dispatcher.sent())
	assert.Equal(t, 2, checker.callCount())
}

func TestEngine_Process_IsolatesFailingCheckers(t *testing.T) {
	panicking := &stubChecker{kind: "panicking", deviceType: "cpu", label: "temp", panics: true}
	failing := &stubChecker{kind: "failing", deviceType: "cpu", label: "temp", err: errors.New("db down")}
	healthy := &stubChecker{kind: "healthy", deviceType: "cpu", label: "temp", triggered: true, message: "alert"}
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher, panicking, failing, healthy)

	devices := []domain.Device{{Name: "cpu", Type: "cpu", Enabled: true}}
	readings := []domain.Reading{{DeviceName: "cpu", Label: "temp", Value: 70}}

	engine.Process(context.Background(), readings, devices)

	// паника и ошибка соседей не мешают здоровому чекеру
	assert.Equal(t, []string{"alert"}, dispatcher.sent())
	assert.Equal(t, 1, panicking.callCount())
	assert.Equal(t, 1, failing.callCount())
}

func TestEngine_Process_NotTriggeredSendsNothing(t *testing.T) {
	checker := &stubChecker{kind: "cpu_temp_high", deviceType: "cpu", label: "temp", triggered: false}
	dispatcher := &recordingDispatcher{}
	engine := newTestEngine(dispatcher, checker)

	devices := []domain.Device{{Name: "cpu", Type: "cpu", Enabled: true}}
	engine.Process(context.Background(), []domain.Reading{{DeviceName: "cpu", Label: "temp", Value: 30}}, devices)

	assert.Empty(t, dispatcher.sent())
	assert.Equal(t, 1, checker.callCount())
}

func TestRegistry_Lookup(t *testing.T) {
	cpuTemp := &stubChecker{kind: "cpu_temp_high", deviceType: "cpu", label: "temp"}
	cpuLoad := &stubChecker{kind: "cpu_load_sustained", deviceType: "cpu", label: "load"}
	diskTemp := &stubChecker{kind: "storage_temp_high", deviceType: "storage", label: "temp"}

	registry := NewRegistry(cpuTemp, cpuLoad, diskTemp)

	assert.Equal(t, 3, registry.Len())
	assert.Len(t, registry.Lookup("cpu", "temp"), 1)
	assert.Len(t, registry.Lookup("storage", "temp"), 1)
	assert.Nil(t, registry.Lookup("ram", "temp"))

	// несколько чекеров на одну пару (тип, метка)
	registry.Register(&stubChecker{kind: "cpu_temp_critical", deviceType: "cpu", label: "temp"})
	assert.Len(t, registry.Lookup("cpu", "temp"), 2)
	assert.Equal(t, 4, registry.Len())
}
