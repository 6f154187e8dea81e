package collector

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

func writeZone(t *testing.T, root string, n int, temp int64, trips map[string]int64) {
	t.Helper()

	dir := filepath.Join(root, fmt.Sprintf("class/thermal/thermal_zone%d", n))
	writeTestFile(t, filepath.Join(dir, "temp"), fmt.Sprintf("%d\n", temp))
	i := 0
	for kind, trip := range trips {
		writeTestFile(t, filepath.Join(dir, fmt.Sprintf("trip_point_%d_type", i)), kind+"\n")
		writeTestFile(t, filepath.Join(dir, fmt.Sprintf("trip_point_%d_temp", i)), fmt.Sprintf("%d\n", trip))
		i++
	}
}

func TestThermalStatus_Buckets(t *testing.T) {
	trips := zoneTrips{active: 50000, passive: 80000, hot: 90000, critical: 100000}
	tests := []struct {
		temp int64
		want telemetry.ThermalStatus
	}{
		{30000, telemetry.ThermalStatusNone},
		{50000, telemetry.ThermalStatusLight},
		{85000, telemetry.ThermalStatusModerate},
		{91000, telemetry.ThermalStatusSevere},
		{95000, telemetry.ThermalStatusCritical},
		{98500, telemetry.ThermalStatusEmergency},
		{100000, telemetry.ThermalStatusShutdown},
	}
	for _, tt := range tests {
		if got := thermalStatus(tt.temp, trips); got != tt.want {
			t.Fatalf("thermalStatus(%d) = %d, want %d", tt.temp, got, tt.want)
		}
	}
}

func TestThermalStatus_NoTrips(t *testing.T) {
	if got := thermalStatus(120000, zoneTrips{}); got != telemetry.ThermalStatusNone {
		t.Fatalf("thermalStatus(no trips) = %d, want None", got)
	}
}

func TestCollectThermal_PicksWorstZone(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeZone(t, root, 0, 45000, map[string]int64{"critical": 105000, "passive": 95000})
	writeZone(t, root, 1, 97000, map[string]int64{"critical": 105000, "passive": 95000})
	writeZone(t, root, 2, 60000, nil)

	sample, err := CollectThermal()
	if err != nil {
		t.Fatalf("CollectThermal() error = %v", err)
	}
	if sample.Zone != "thermal_zone1" {
		t.Fatalf("Zone = %q, want thermal_zone1", sample.Zone)
	}
	if sample.Status != telemetry.ThermalStatusModerate {
		t.Fatalf("Status = %d, want Moderate", sample.Status)
	}
}

func TestReadTrips_KeepsLowestPerType(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/thermal/thermal_zone0")
	writeTestFile(t, filepath.Join(dir, "trip_point_0_type"), "active\n")
	writeTestFile(t, filepath.Join(dir, "trip_point_0_temp"), "70000\n")
	writeTestFile(t, filepath.Join(dir, "trip_point_1_type"), "active\n")
	writeTestFile(t, filepath.Join(dir, "trip_point_1_temp"), "55000\n")

	if got := readTrips(dir); got.active != 55000 {
		t.Fatalf("active trip = %d, want 55000", got.active)
	}
}

func TestCollectThermal_NoZones(t *testing.T) {
	setTestSysfsRoot(t)

	_, err := CollectThermal()
	if !errors.Is(err, telemetry.ErrUnavailable) {
		t.Fatalf("CollectThermal() error = %v, want ErrUnavailable", err)
	}
}
