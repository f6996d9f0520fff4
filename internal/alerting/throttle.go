package alerting

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type throttleKey struct {
	deviceName string
	checkerKind string
}

// Throttle подавляет повторные алерты одного вида для одного устройства
// внутри окна. На ключ заводится rate.Limiter с burst=1: проверка и фиксация
// срабатывания атомарны, два одновременных вызова не пройдут оба.
// Кэш живёт только в памяти и сбрасывается при рестарте процесса.
type Throttle struct {
	mu       sync.Mutex
	window   time.Duration
	limiters map[throttleKey]*rate.Limiter
	now      func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window:   window,
		limiters: make(map[throttleKey]*rate.Limiter),
		now:      time.Now,
	}
}

// Allow решает, можно ли отправить алерт, и сразу занимает окно.
// Вызывается до рендера и отправки: сбой доставки окно не открывает заново.
func (t *Throttle) Allow(deviceName, checkerKind string) bool {
	key := throttleKey{deviceName: deviceName, checkerKind: checkerKind}

	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.window), 1)
		t.limiters[key] = lim
	}
	t.mu.Unlock()

	return lim.AllowN(t.now(), 1)
}
