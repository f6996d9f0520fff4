package utils

import "fmt"

// FormatBytes печатает объём как '26.0T' или '500.0G' — так размеры
// пулов и дисков показываются в инвентаре
func FormatBytes(n uint64) string {
	const (
		gib = 1 << 30
		tib = 1 << 40
	)
	if n >= tib {
		return fmt.Sprintf("%.1fT", float64(n)/tib)
	}
	return fmt.Sprintf("%.1fG", float64(n)/gib)
}
