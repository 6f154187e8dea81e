package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// HasBattery reports whether any BAT* power supply is present.
func HasBattery() bool {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	return err == nil && len(matches) > 0
}

// CollectBattery reads battery info from /sys/class/power_supply/BAT*.
func CollectBattery() (*BatterySample, error) {
	data, err := ReadBatteryUevent()
	if err != nil {
		return nil, err
	}

	props := parseUevent(data)
	s := &BatterySample{
		Timestamp: time.Now().Unix(),
		Status:    telemetry.ParsePowerSupplyStatus(props["POWER_SUPPLY_STATUS"]),
		ACOnline:  isACOnline(),
	}

	switch {
	case props["POWER_SUPPLY_CAPACITY"] != "":
		s.Level, _ = strconv.ParseFloat(props["POWER_SUPPLY_CAPACITY"], 64)
		s.Scale = 100
	case props["POWER_SUPPLY_CHARGE_FULL"] != "":
		s.Level, _ = strconv.ParseFloat(props["POWER_SUPPLY_CHARGE_NOW"], 64)
		s.Scale, _ = strconv.ParseFloat(props["POWER_SUPPLY_CHARGE_FULL"], 64)
	case props["POWER_SUPPLY_ENERGY_FULL"] != "":
		s.Level, _ = strconv.ParseFloat(props["POWER_SUPPLY_ENERGY_NOW"], 64)
		s.Scale, _ = strconv.ParseFloat(props["POWER_SUPPLY_ENERGY_FULL"], 64)
	}

	// Some firmware reports "Discharging" at full capacity while on AC power.
	// Detect this and correct to "Full".
	if s.Status == telemetry.PowerSupplyDischarging && s.Percent() >= 100 && s.ACOnline {
		s.Status = telemetry.PowerSupplyFull
	}

	return s, nil
}

// ReadBatteryUevent returns the raw uevent text of the first battery.
// The legacy battery observer polls this to detect changes.
func ReadBatteryUevent() (string, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	if err != nil {
		return "", fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no battery found: %w", telemetry.ErrUnavailable)
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return "", fmt.Errorf("read uevent: %w", err)
	}
	return string(data), nil
}

// isACOnline checks if any AC adapter is online.
func isACOnline() bool {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/AC*/online"))
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
