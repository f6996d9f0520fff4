package collector

import (
	"context"
	"math"
	"strings"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/sensors"
)

// cpuTempSensors — известные сенсоры температуры CPU в порядке предпочтения
var cpuTempSensors = []string{"coretemp", "k10temp", "cpu_thermal", "soc_thermal"}

// CPUCollector отдаёт сглаженную загрузку и температуру пакета CPU
type CPUCollector struct {
	alpha    float64
	smoothed float64
	primed   bool
}

func NewCPUCollector() *CPUCollector {
	return &CPUCollector{alpha: 0.3}
}

func (c *CPUCollector) DeviceType() string { return "cpu" }

func (c *CPUCollector) Collect(ctx context.Context) ([]domain.Reading, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		return nil, err
	}
	load := percents[0]

	// EMA-сглаживание, чтобы график не дёргался от коротких пиков
	if !c.primed {
		c.smoothed = load
		c.primed = true
	} else {
		c.smoothed = c.alpha*load + (1-c.alpha)*c.smoothed
	}

	readings := []domain.Reading{
		{DeviceName: "cpu", Label: "load", Value: math.Round(c.smoothed*10) / 10},
	}

	if temp, ok := cpuTemperature(ctx); ok {
		readings = append(readings, domain.Reading{
			DeviceName: "cpu", Label: "temp", Value: math.Round(temp*10) / 10,
		})
	}
	return readings, nil
}

func cpuTemperature(ctx context.Context) (float64, bool) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	for _, name := range cpuTempSensors {
		var fallback float64
		var found bool
		for _, stat := range stats {
			key := strings.ToLower(stat.SensorKey)
			if !strings.Contains(key, name) {
				continue
			}
			if strings.Contains(key, "package") {
				return stat.Temperature, true
			}
			if !found && stat.Temperature > 0 {
				fallback = stat.Temperature
				found = true
			}
		}
		if found {
			return fallback, true
		}
	}
	return 0, false
}
