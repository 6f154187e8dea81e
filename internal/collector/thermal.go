package collector

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Margins below the critical trip point, in millidegrees.
const (
	emergencyMarginMilliC = 2000
	criticalMarginMilliC  = 5000
)

type zoneTrips struct {
	active, passive, hot, critical int64 // 0 when absent
}

// CollectThermal reads every /sys/class/thermal/thermal_zone* and returns
// the zone under the most thermal pressure.
func CollectThermal() (*ThermalSample, error) {
	zones, err := filepath.Glob(filepath.Join(sysfsRoot, "class/thermal/thermal_zone*"))
	if err != nil {
		return nil, fmt.Errorf("glob thermal zones: %w", err)
	}

	var worst *ThermalSample
	for _, dir := range zones {
		temp, err := readIntFile(filepath.Join(dir, "temp"))
		if err != nil {
			continue
		}
		status := thermalStatus(temp, readTrips(dir))
		if worst == nil || status > worst.Status || (status == worst.Status && temp > worst.TempMilliC) {
			worst = &ThermalSample{
				Zone:       filepath.Base(dir),
				TempMilliC: temp,
				Status:     status,
			}
		}
	}
	if worst == nil {
		return nil, fmt.Errorf("no readable thermal zone: %w", telemetry.ErrUnavailable)
	}
	worst.Timestamp = time.Now().Unix()
	return worst, nil
}

// readTrips collects the lowest trip temperature of each type for a zone.
func readTrips(dir string) zoneTrips {
	var trips zoneTrips
	types, _ := filepath.Glob(filepath.Join(dir, "trip_point_*_type"))
	for _, typePath := range types {
		kind, err := readTrimmed(typePath)
		if err != nil {
			continue
		}
		temp, err := readIntFile(strings.TrimSuffix(typePath, "_type") + "_temp")
		if err != nil || temp <= 0 {
			continue
		}

		var slot *int64
		switch kind {
		case "active":
			slot = &trips.active
		case "passive":
			slot = &trips.passive
		case "hot":
			slot = &trips.hot
		case "critical":
			slot = &trips.critical
		default:
			continue
		}
		if *slot == 0 || temp < *slot {
			*slot = temp
		}
	}
	return trips
}

func thermalStatus(temp int64, trips zoneTrips) telemetry.ThermalStatus {
	reached := func(trip int64) bool { return trip > 0 && temp >= trip }

	switch {
	case reached(trips.critical):
		return telemetry.ThermalStatusShutdown
	case trips.critical > 0 && reached(trips.critical-emergencyMarginMilliC):
		return telemetry.ThermalStatusEmergency
	case trips.critical > 0 && reached(trips.critical-criticalMarginMilliC):
		return telemetry.ThermalStatusCritical
	case reached(trips.hot):
		return telemetry.ThermalStatusSevere
	case reached(trips.passive):
		return telemetry.ThermalStatusModerate
	case reached(trips.active):
		return telemetry.ThermalStatusLight
	default:
		return telemetry.ThermalStatusNone
	}
}
