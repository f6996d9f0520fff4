package inventory

import (
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/pkg/utils"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"
)

type DeviceWriter interface {
	UpsertDevice(ctx context.Context, name, devType string, details map[string]any) (*domain.Device, error)
}

// Scanner строит справочник устройств: cpu, ram, сеть, диски по серийникам
// и ZFS-пулы. Единственный путь, который создаёт устройства.
type Scanner struct {
	writer DeviceWriter
	logger *zap.Logger
}

func NewScanner(writer DeviceWriter, logger *zap.Logger) *Scanner {
	return &Scanner{
		writer: writer,
		logger: logger,
	}
}

// Run выполняет полный проход инвентаризации; сбои отдельных секций не фатальны
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("Starting system inventory scan")

	s.scanCPU(ctx)
	s.scanRAM(ctx)
	s.scanNetwork(ctx)

	poolBySerial := s.zfsSerialMapping(ctx)
	s.scanDisks(ctx, poolBySerial)
	s.scanZFSPools(ctx)

	s.logger.Info("Inventory scan complete")
	return nil
}

func (s *Scanner) scanCPU(ctx context.Context) {
	details := map[string]any{}
	if info, err := cpu.InfoWithContext(ctx); err == nil && len(info) > 0 {
		details["model"] = info[0].ModelName
	}
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		details["cores_physical"] = physical
	}
	if logical, err := cpu.CountsWithContext(ctx, true); err == nil {
		details["cores_logical"] = logical
	}
	if _, err := s.writer.UpsertDevice(ctx, "cpu", "cpu", details); err != nil {
		s.logger.Error("Failed to upsert cpu device", zap.Error(err))
	}
}

func (s *Scanner) scanRAM(ctx context.Context) {
	details := map[string]any{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		details["total"] = utils.FormatBytes(vm.Total)
	}
	if _, err := s.writer.UpsertDevice(ctx, "ram", "ram", details); err != nil {
		s.logger.Error("Failed to upsert ram device", zap.Error(err))
	}
}

func (s *Scanner) scanNetwork(ctx context.Context) {
	var monitored []string
	if ifaces, err := psnet.InterfacesWithContext(ctx); err == nil {
		for _, iface := range ifaces {
			name := iface.Name
			if name == "lo" || strings.HasPrefix(name, "veth") || strings.HasPrefix(name, "fw") {
				continue
			}
			monitored = append(monitored, name)
		}
	}
	details := map[string]any{
		"description":          "Aggregated traffic from all physical and bridge interfaces",
		"monitored_interfaces": monitored,
	}
	if _, err := s.writer.UpsertDevice(ctx, "net", "network", details); err != nil {
		s.logger.Error("Failed to upsert net device", zap.Error(err))
	}
}

var nvmePartition = regexp.MustCompile(`p\d+$`)

// zfsSerialMapping строит отображение серийник/имя vdev -> имя пула из zpool status
func (s *Scanner) zfsSerialMapping(ctx context.Context) map[string]string {
	mapping := make(map[string]string)
	out, err := exec.CommandContext(ctx, "zpool", "status").Output()
	if err != nil {
		return mapping
	}

	var currentPool string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "pool:") {
			currentPool = strings.TrimSpace(strings.TrimPrefix(line, "pool:"))
			continue
		}
		if !strings.Contains(line, "ONLINE") && !strings.Contains(line, "DEGRADED") && !strings.Contains(line, "FAULTED") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		vdev := fields[0]
		if vdev == currentPool || strings.Contains(vdev, "raidz") || strings.Contains(vdev, "mirror") ||
			strings.Contains(vdev, "logs") || strings.Contains(vdev, "cache") {
			continue
		}

		devName := vdev[strings.LastIndex(vdev, "/")+1:]
		// куски имени длиннее 8 символов — вероятные серийники или WWN
		cleaned := strings.ReplaceAll(strings.ReplaceAll(devName, "-part", ""), "_1", "")
		for _, segment := range strings.Split(cleaned, "_") {
			if len(segment) > 8 {
				mapping[segment] = currentPool
			}
		}
		mapping[nvmePartition.ReplaceAllString(devName, "")] = currentPool
		mapping[devName] = currentPool
		mapping[vdev] = currentPool
	}
	return mapping
}

type smartScanOutput struct {
	Devices []struct {
		Name string `json:"name"`
	} `json:"devices"`
}

type smartDeviceInfo struct {
	SerialNumber string `json:"serial_number"`
	ModelName    string `json:"model_name"`
	RotationRate int    `json:"rotation_rate"`
}

func (s *Scanner) scanDisks(ctx context.Context, poolBySerial map[string]string) {
	out, err := exec.CommandContext(ctx, "smartctl", "--scan", "--json").Output()
	if err != nil {
		s.logger.Warn("smartctl not available, skipping disk inventory", zap.Error(err))
		return
	}
	var scan smartScanOutput
	if err := json.Unmarshal(out, &scan); err != nil {
		s.logger.Error("Failed to parse smartctl scan output", zap.Error(err))
		return
	}

	for _, dev := range scan.Devices {
		infoOut, err := exec.CommandContext(ctx, "smartctl", "-i", dev.Name, "--json").Output()
		if err != nil && len(infoOut) == 0 {
			continue
		}
		var info smartDeviceInfo
		if err := json.Unmarshal(infoOut, &info); err != nil {
			continue
		}
		sn := strings.TrimSpace(info.SerialNumber)
		if sn == "" {
			continue
		}

		pool, ok := poolBySerial[sn]
		if !ok {
			// серийники в zpool status часто совпадают лишь частично
			for zfsSN, poolName := range poolBySerial {
				if strings.Contains(sn, zfsSN) || strings.Contains(zfsSN, sn) {
					pool = poolName
					break
				}
			}
		}

		driveType := "hdd"
		if info.RotationRate == 0 {
			driveType = "ssd"
		}
		details := map[string]any{
			"model":         info.ModelName,
			"path":          dev.Name,
			"drive_type":    driveType,
			"rotation_rate": info.RotationRate,
		}
		if pool != "" {
			details["zfs_pool"] = pool
		}
		if _, err := s.writer.UpsertDevice(ctx, sn, "storage", details); err != nil {
			s.logger.Error("Failed to upsert disk device", zap.String("serial", sn), zap.Error(err))
		}
	}
}

func (s *Scanner) scanZFSPools(ctx context.Context) {
	out, err := exec.CommandContext(ctx, "zfs", "list", "-H", "-p", "-o", "name,avail,used").Output()
	if err != nil {
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		// датасеты пропускаем, интересны только корневые пулы
		if line == "" || strings.Contains(line, "/") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		avail, err1 := strconv.ParseUint(fields[1], 10, 64)
		used, err2 := strconv.ParseUint(fields[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		details := map[string]any{"max_size": utils.FormatBytes(avail + used)}
		if _, err := s.writer.UpsertDevice(ctx, name, "zfs_pool", details); err != nil {
			s.logger.Error("Failed to upsert zfs pool device", zap.String("pool", name), zap.Error(err))
		}
	}
}
