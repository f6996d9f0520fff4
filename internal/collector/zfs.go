package collector

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/paulwinex/nas-monitor/internal/domain"
)

// ZFSCollector читает занятость пулов из `zfs list` (usable-ёмкость,
// в отличие от raw-ёмкости из `zpool list`)
type ZFSCollector struct{}

func NewZFSCollector() *ZFSCollector { return &ZFSCollector{} }

func (c *ZFSCollector) DeviceType() string { return "zfs_pool" }

func (c *ZFSCollector) Collect(ctx context.Context) ([]domain.Reading, error) {
	out, err := exec.CommandContext(ctx, "zfs", "list", "-H", "-p", "-o", "name,used,avail").Output()
	if err != nil {
		return nil, fmt.Errorf("zfs list failed: %w", err)
	}
	return parseZFSList(string(out)), nil
}

// parseZFSList разбирает табличный вывод zfs list; датасеты (с '/') пропускаются
func parseZFSList(out string) []domain.Reading {
	var readings []domain.Reading
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" || strings.Contains(line, "/") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		used, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		avail, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		total := used + avail
		var usagePercent float64
		if total > 0 {
			usagePercent = float64(used) / float64(total) * 100
		}

		readings = append(readings,
			domain.Reading{DeviceName: name, Label: "usage_percent", Value: math.Round(usagePercent*100) / 100},
			domain.Reading{DeviceName: name, Label: "used_gb", Value: math.Round(float64(used)/(1<<30)*100) / 100},
			domain.Reading{DeviceName: name, Label: "total_gb", Value: math.Round(float64(total)/(1<<30)*100) / 100},
		)
	}
	return readings
}
