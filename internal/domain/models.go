package domain

import (
	"time"
)

// Tier — уровень детализации хранения метрик
type Tier string

const (
	TierRaw     Tier = "raw"
	TierHourly  Tier = "hourly"
	TierHistory Tier = "history"
)

// Tiers перечисляет уровни от мелкого к крупному
var Tiers = []Tier{TierRaw, TierHourly, TierHistory}

func (t Tier) Valid() bool {
	switch t {
	case TierRaw, TierHourly, TierHistory:
		return true
	}
	return false
}

// Device представляет наблюдаемое устройство (cpu, ram, диск, пул и т.д.)
type Device struct {
	ID      int64          `json:"-" db:"id"`
	Name    string         `json:"name" db:"name"`
	Type    string         `json:"type" db:"type"`
	Enabled bool           `json:"enabled" db:"enabled"`
	Details map[string]any `json:"details" db:"details"`
}

// Reading — одно показание от коллектора, ещё не привязанное к устройству в БД
type Reading struct {
	DeviceName string  `json:"device_name"`
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
}

// Sample — сохранённая строка метрики в одном из уровней
type Sample struct {
	ID         int64     `json:"id" db:"id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	DeviceID   int64     `json:"-" db:"device_id"`
	DeviceName string    `json:"device_name" db:"device_name"`
	DeviceType string    `json:"device_type,omitempty" db:"device_type"`
	Label      string    `json:"label" db:"label"`
	Value      float64   `json:"value" db:"value"`
}

// RangeFilter задаёт выборку метрик; пустые поля означают "все"
type RangeFilter struct {
	DeviceTypes []string
	DeviceNames []string
	Labels      []string
	From        time.Time
	To          time.Time
}
