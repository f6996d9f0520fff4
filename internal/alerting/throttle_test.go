package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_SuppressesWithinWindow(t *testing.T) {
	throttle := NewThrottle(10 * time.Minute)

	current := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return current }

	assert.True(t, throttle.Allow("disk_sda", "storage_temp_high"))
	assert.False(t, throttle.Allow("disk_sda", "storage_temp_high"))

	// внутри окна всё ещё тихо
	current = current.Add(9 * time.Minute)
	assert.False(t, throttle.Allow("disk_sda", "storage_temp_high"))

	// окно прошло — можно снова
	current = current.Add(2 * time.Minute)
	assert.True(t, throttle.Allow("disk_sda", "storage_temp_high"))
	assert.False(t, throttle.Allow("disk_sda", "storage_temp_high"))
}

func TestThrottle_IndependentKeys(t *testing.T) {
	throttle := NewThrottle(10 * time.Minute)
	current := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return current }

	assert.True(t, throttle.Allow("disk_sda", "storage_temp_high"))

	// другое устройство и другой вид алерта окном не связаны
	assert.True(t, throttle.Allow("disk_sdb", "storage_temp_high"))
	assert.True(t, throttle.Allow("disk_sda", "storage_health_degraded"))

	assert.False(t, throttle.Allow("disk_sda", "storage_temp_high"))
	assert.False(t, throttle.Allow("disk_sdb", "storage_temp_high"))
}
