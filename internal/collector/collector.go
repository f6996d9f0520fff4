package collector

import (
	"context"

	"github.com/paulwinex/nas-monitor/internal/domain"
)

// Collector добывает показания для устройств одного типа.
// Любая проблема с инструментом или разбором его вывода превращается
// в пустой результат: ядро не видит, почему коллектор ничего не принёс.
type Collector interface {
	DeviceType() string
	Collect(ctx context.Context) ([]domain.Reading, error)
}
