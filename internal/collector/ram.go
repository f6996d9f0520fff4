package collector

import (
	"context"
	"math"
	"strings"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// RAMCollector отдаёт использование памяти и, если повезёт, температуру модулей
type RAMCollector struct{}

func NewRAMCollector() *RAMCollector { return &RAMCollector{} }

func (c *RAMCollector) DeviceType() string { return "ram" }

func (c *RAMCollector) Collect(ctx context.Context) ([]domain.Reading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	readings := []domain.Reading{
		{DeviceName: "ram", Label: "usage_percent", Value: vm.UsedPercent},
		{DeviceName: "ram", Label: "used_gb", Value: math.Round(float64(vm.Used)/(1<<30)*100) / 100},
	}

	if temp, ok := ramTemperature(ctx); ok {
		readings = append(readings, domain.Reading{
			DeviceName: "ram", Label: "temp", Value: math.Round(temp*10) / 10,
		})
	}
	return readings, nil
}

func ramTemperature(ctx context.Context) (float64, bool) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	for _, stat := range stats {
		key := strings.ToLower(stat.SensorKey)
		for _, marker := range []string{"dimm", "mem", "acpitz", "pch_"} {
			if strings.Contains(key, marker) && stat.Temperature > 0 {
				return stat.Temperature, true
			}
		}
	}
	return 0, false
}
