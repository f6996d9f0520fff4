package collector

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSmartReport(t *testing.T) {
	out := []byte(`{
		"serial_number": "WD-WCC4N123",
		"temperature": {"current": 38},
		"smart_status": {"passed": true},
		"ata_smart_attributes": {"table": [
			{"name": "Reallocated_Sector_Ct", "raw": {"value": 0}},
			{"name": "Current_Pending_Sector", "raw": {"value": 0}}
		]}
	}`)

	readings, err := parseSmartReport(out, "/dev/sda")
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "WD-WCC4N123", readings[0].DeviceName)
	assert.Equal(t, "temp", readings[0].Label)
	assert.Equal(t, 38.0, readings[0].Value)
	assert.Equal(t, "health", readings[1].Label)
	assert.Zero(t, readings[1].Value)
}

func TestParseSmartReport_FallbackName(t *testing.T) {
	readings, err := parseSmartReport([]byte(`{"temperature": {"current": 30}}`), "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb", readings[0].DeviceName)
}

func TestParseSmartReport_InvalidJSON(t *testing.T) {
	_, err := parseSmartReport([]byte("not json"), "/dev/sda")
	assert.Error(t, err)
}

func smartReportWith(t *testing.T, passed bool, reallocated, pending, mediaErrors int64) smartReport {
	t.Helper()
	raw := fmt.Sprintf(`{
		"smart_status": {"passed": %t},
		"ata_smart_attributes": {"table": [
			{"name": "Reallocated_Sector_Ct", "raw": {"value": %d}},
			{"name": "Current_Pending_Sector", "raw": {"value": %d}}
		]},
		"nvme_smart_health_information_log": {"media_errors": %d}
	}`, passed, reallocated, pending, mediaErrors)

	var report smartReport
	require.NoError(t, json.Unmarshal([]byte(raw), &report))
	return report
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name     string
		report   smartReport
		expected int
	}{
		{"clean disk", smartReportWith(t, true, 0, 0, 0), 0},
		{"few errors still ok", smartReportWith(t, true, 3, 2, 0), 0},
		{"first errors", smartReportWith(t, true, 4, 2, 0), 1},
		{"many errors", smartReportWith(t, true, 40, 20, 0), 2},
		{"nvme media errors counted", smartReportWith(t, true, 0, 0, 60), 2},
		{"smart failed wins", smartReportWith(t, false, 0, 0, 0), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, healthScore(tt.report))
		})
	}
}

func TestFindMountpoint(t *testing.T) {
	mounts := map[string]string{
		"/dev/sda1":     "/",
		"/dev/nvme0n1p2": "/data",
	}

	mount, ok := findMountpoint(mounts, "/dev/sda1")
	assert.True(t, ok)
	assert.Equal(t, "/", mount)

	// диск находится по своему разделу
	mount, ok = findMountpoint(mounts, "/dev/nvme0n1")
	assert.True(t, ok)
	assert.Equal(t, "/data", mount)

	_, ok = findMountpoint(mounts, "/dev/sdb")
	assert.False(t, ok)
}
