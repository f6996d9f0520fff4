package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/paulwinex/nas-monitor/internal/domain"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"
)

// smartScan — вывод smartctl --scan --json
type smartScan struct {
	Devices []struct {
		Name string `json:"name"`
	} `json:"devices"`
}

// smartReport — интересующая часть вывода smartctl -a --json
type smartReport struct {
	SerialNumber string `json:"serial_number"`
	Temperature  struct {
		Current float64 `json:"current"`
	} `json:"temperature"`
	SmartStatus struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	AtaSmartAttributes struct {
		Table []struct {
			Name string `json:"name"`
			Raw  struct {
				Value int64 `json:"value"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
	NvmeSmartHealthInformationLog struct {
		MediaErrors int64 `json:"media_errors"`
	} `json:"nvme_smart_health_information_log"`
}

// StorageCollector опрашивает SMART через smartctl и использование смонтированных дисков
type StorageCollector struct {
	logger *zap.Logger
}

func NewStorageCollector(logger *zap.Logger) *StorageCollector {
	return &StorageCollector{logger: logger}
}

func (c *StorageCollector) DeviceType() string { return "storage" }

func (c *StorageCollector) Collect(ctx context.Context) ([]domain.Reading, error) {
	scanOut, err := exec.CommandContext(ctx, "smartctl", "--scan", "--json").Output()
	if err != nil {
		return nil, fmt.Errorf("smartctl scan failed: %w", err)
	}
	var scan smartScan
	if err := json.Unmarshal(scanOut, &scan); err != nil {
		return nil, fmt.Errorf("failed to parse smartctl scan output: %w", err)
	}

	mounts := mountpointsByDevice(ctx)

	var readings []domain.Reading
	for _, dev := range scan.Devices {
		// smartctl возвращает ненулевой код и при живом диске с ошибками,
		// поэтому вывод пробуем разобрать, пока он не пустой
		out, err := exec.CommandContext(ctx, "smartctl", "-a", dev.Name, "--json").Output()
		if err != nil && len(out) == 0 {
			c.logger.Warn("smartctl query failed", zap.String("device", dev.Name), zap.Error(err))
			continue
		}
		parsed, err := parseSmartReport(out, dev.Name)
		if err != nil {
			c.logger.Warn("failed to parse smartctl output", zap.String("device", dev.Name), zap.Error(err))
			continue
		}
		readings = append(readings, parsed...)

		if mount, ok := findMountpoint(mounts, dev.Name); ok {
			if usage, err := disk.UsageWithContext(ctx, mount); err == nil {
				serial := serialFromReport(out, dev.Name)
				readings = append(readings,
					domain.Reading{DeviceName: serial, Label: "used_gb", Value: math.Round(float64(usage.Used)/(1<<30)*100) / 100},
					domain.Reading{DeviceName: serial, Label: "total_gb", Value: math.Round(float64(usage.Total)/(1<<30)*100) / 100},
					domain.Reading{DeviceName: serial, Label: "usage_percent", Value: usage.UsedPercent},
				)
			}
		}
	}
	return readings, nil
}

// parseSmartReport извлекает temp и health-балл из JSON-вывода smartctl.
// Имя устройства — серийный номер, как и в инвентаре.
func parseSmartReport(out []byte, fallbackName string) ([]domain.Reading, error) {
	var report smartReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(report.SerialNumber)
	if name == "" {
		name = fallbackName
	}

	readings := []domain.Reading{
		{DeviceName: name, Label: "temp", Value: report.Temperature.Current},
		{DeviceName: name, Label: "health", Value: float64(healthScore(report))},
	}
	return readings, nil
}

// healthScore сводит SMART-состояние к баллу:
// 0 — ошибок нет, 1 — первые ошибки (>5), 2 — много ошибок (>50), 3 — SMART provalен
func healthScore(report smartReport) int {
	var reallocated, pending int64
	for _, attr := range report.AtaSmartAttributes.Table {
		switch attr.Name {
		case "Reallocated_Sector_Ct":
			reallocated = attr.Raw.Value
		case "Current_Pending_Sector":
			pending = attr.Raw.Value
		}
	}
	totalErrors := reallocated + pending + report.NvmeSmartHealthInformationLog.MediaErrors

	switch {
	case !report.SmartStatus.Passed:
		return 3
	case totalErrors > 50:
		return 2
	case totalErrors > 5:
		return 1
	}
	return 0
}

func serialFromReport(out []byte, fallbackName string) string {
	var report smartReport
	if err := json.Unmarshal(out, &report); err == nil {
		if sn := strings.TrimSpace(report.SerialNumber); sn != "" {
			return sn
		}
	}
	return fallbackName
}

func mountpointsByDevice(ctx context.Context) map[string]string {
	mounts := make(map[string]string)
	partitions, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return mounts
	}
	for _, p := range partitions {
		mounts[p.Device] = p.Mountpoint
		if resolved, err := filepath.EvalSymlinks(p.Device); err == nil {
			mounts[resolved] = p.Mountpoint
		}
	}
	return mounts
}

// findMountpoint ищет точку монтирования диска или одного из его разделов
func findMountpoint(mounts map[string]string, devicePath string) (string, bool) {
	if mount, ok := mounts[devicePath]; ok {
		return mount, true
	}
	for dev, mount := range mounts {
		if strings.HasPrefix(dev, devicePath) {
			return mount, true
		}
	}
	return "", false
}
