package alerting

import (
	"fmt"
	"os"
	"time"

	"github.com/paulwinex/nas-monitor/internal/config"

	"gopkg.in/yaml.v3"
)

// Duration — time.Duration с разбором строк вида "5m" из YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Rule — декларативное описание одного правила алертинга.
// MinDuration > 0 делает правило sustained: условие должно держаться
// непрерывно не меньше указанного времени.
type Rule struct {
	Kind        string   `yaml:"kind"`
	DeviceType  string   `yaml:"device_type"`
	Label       string   `yaml:"label"`
	Op          Op       `yaml:"op"`
	Threshold   float64  `yaml:"threshold"`
	MinDuration Duration `yaml:"min_duration,omitempty"`
	Message     string   `yaml:"message"`
}

func (r Rule) validate() error {
	if r.Kind == "" {
		return fmt.Errorf("rule kind must not be empty")
	}
	if r.DeviceType == "" || r.Label == "" {
		return fmt.Errorf("rule %q: device_type and label are required", r.Kind)
	}
	if !r.Op.Valid() {
		return fmt.Errorf("rule %q: invalid op %q", r.Kind, r.Op)
	}
	if r.Message == "" {
		return fmt.Errorf("rule %q: message template is required", r.Kind)
	}
	return nil
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules читает набор правил из YAML-файла
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var parsed rulesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if len(parsed.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	for _, rule := range parsed.Rules {
		if err := rule.validate(); err != nil {
			return nil, err
		}
	}
	return parsed.Rules, nil
}

// DefaultRules — встроенный набор правил на порогах из конфигурации
func DefaultRules(cfg config.AlertingConfig) []Rule {
	return []Rule{
		{
			Kind:       "cpu_temp_high",
			DeviceType: "cpu",
			Label:      "temp",
			Op:         OpGT,
			Threshold:  cfg.CPUTempLimit,
			Message:    "CPU {{.Device.Name}}: temperature {{printf \"%.1f\" .Reading.Value}}C is above {{.Threshold}}C",
		},
		{
			Kind:        "cpu_load_sustained",
			DeviceType:  "cpu",
			Label:       "load",
			Op:          OpGT,
			Threshold:   cfg.CPULoadLimit,
			MinDuration: Duration(cfg.CPULoadDuration),
			Message:     "CPU {{.Device.Name}}: load {{printf \"%.1f\" .Reading.Value}}% stayed above {{.Threshold}}%",
		},
		{
			Kind:       "ram_usage_high",
			DeviceType: "ram",
			Label:      "usage_percent",
			Op:         OpGT,
			Threshold:  cfg.RAMUsageLimit,
			Message:    "RAM {{.Device.Name}}: usage {{printf \"%.1f\" .Reading.Value}}% is above {{.Threshold}}%",
		},
		{
			Kind:       "ram_temp_high",
			DeviceType: "ram",
			Label:      "temp",
			Op:         OpGT,
			Threshold:  cfg.RAMTempLimit,
			Message:    "RAM {{.Device.Name}}: temperature {{printf \"%.1f\" .Reading.Value}}C is above {{.Threshold}}C",
		},
		{
			Kind:       "storage_temp_high",
			DeviceType: "storage",
			Label:      "temp",
			Op:         OpGT,
			Threshold:  cfg.StorageTemp,
			Message:    "Disk {{.Device.Name}}: temperature {{printf \"%.1f\" .Reading.Value}}C is above {{.Threshold}}C",
		},
		{
			// health: 0 ok, 1 warning, 2 critical errors, 3 SMART failed
			Kind:       "storage_health_degraded",
			DeviceType: "storage",
			Label:      "health",
			Op:         OpGE,
			Threshold:  1,
			Message:    "Disk {{.Device.Name}}: SMART health degraded (score {{printf \"%.0f\" .Reading.Value}})",
		},
		{
			Kind:       "zfs_usage_high",
			DeviceType: "zfs_pool",
			Label:      "usage_percent",
			Op:         OpGT,
			Threshold:  cfg.ZFSUsageLimit,
			Message:    "ZFS pool {{.Device.Name}}: usage {{printf \"%.1f\" .Reading.Value}}% is above {{.Threshold}}%",
		},
	}
}

// BuildCheckers строит чекеры из правил; sustained-правила получают историю
func BuildCheckers(rules []Rule, history HistoryStore, historyWindow time.Duration) ([]Checker, error) {
	checkers := make([]Checker, 0, len(rules))
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, err
		}
		var (
			c   Checker
			err error
		)
		if rule.MinDuration > 0 {
			c, err = newSustainedChecker(rule, history, historyWindow)
		} else {
			c, err = newThresholdChecker(rule)
		}
		if err != nil {
			return nil, err
		}
		checkers = append(checkers, c)
	}
	return checkers, nil
}
