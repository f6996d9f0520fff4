package collector

import (
	"context"
	"math"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// NetCollector считает суммарные скорости приёма и отдачи в КиБ/с
// по дельте счётчиков между вызовами
type NetCollector struct {
	prevSent uint64
	prevRecv uint64
	prevTime time.Time
	primed   bool
}

func NewNetCollector() *NetCollector { return &NetCollector{} }

func (c *NetCollector) DeviceType() string { return "network" }

func (c *NetCollector) Collect(ctx context.Context) ([]domain.Reading, error) {
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return nil, err
	}
	now := time.Now()
	total := counters[0]

	defer func() {
		c.prevSent = total.BytesSent
		c.prevRecv = total.BytesRecv
		c.prevTime = now
		c.primed = true
	}()

	if !c.primed {
		// Первый вызов только запоминает счётчики
		return nil, nil
	}

	dt := now.Sub(c.prevTime).Seconds()
	if dt <= 0 {
		return nil, nil
	}

	upload := float64(total.BytesSent-c.prevSent) / dt / 1024
	download := float64(total.BytesRecv-c.prevRecv) / dt / 1024

	return []domain.Reading{
		{DeviceName: "net", Label: "upload", Value: math.Round(upload*100) / 100},
		{DeviceName: "net", Label: "download", Value: math.Round(download*100) / 100},
	}, nil
}
