package telemetry

import (
	"math"
	"strings"
)

// PowerSupplyStatus is the kernel power_supply status, in kernel enum order.
type PowerSupplyStatus int

const (
	PowerSupplyUnknown PowerSupplyStatus = iota
	PowerSupplyCharging
	PowerSupplyDischarging
	PowerSupplyNotCharging
	PowerSupplyFull
)

// ParsePowerSupplyStatus parses the sysfs POWER_SUPPLY_STATUS string.
// Unrecognized strings yield -1 so they stay distinguishable from "Unknown".
func ParsePowerSupplyStatus(s string) PowerSupplyStatus {
	switch strings.TrimSpace(s) {
	case "Unknown":
		return PowerSupplyUnknown
	case "Charging":
		return PowerSupplyCharging
	case "Discharging":
		return PowerSupplyDischarging
	case "Not charging":
		return PowerSupplyNotCharging
	case "Full":
		return PowerSupplyFull
	default:
		return -1
	}
}

// ClassifyBatteryState maps a power_supply status code. Codes outside the
// known set map to BatteryUnknown.
func ClassifyBatteryState(status PowerSupplyStatus) BatteryState {
	switch status {
	case PowerSupplyCharging:
		return BatteryCharging
	case PowerSupplyFull:
		return BatteryFull
	case PowerSupplyDischarging, PowerSupplyNotCharging:
		return BatteryDischarging
	default:
		return BatteryUnknown
	}
}

// UPowerState is the org.freedesktop.UPower.Device State property.
type UPowerState uint32

const (
	UPowerUnknown UPowerState = iota
	UPowerCharging
	UPowerDischarging
	UPowerEmpty
	UPowerFullyCharged
	UPowerPendingCharge
	UPowerPendingDischarge
)

// ClassifyUPowerState maps a UPower device state. Unlike the sysfs table,
// codes UPower may add later collapse to BatteryDischarging.
func ClassifyUPowerState(state UPowerState) BatteryState {
	switch state {
	case UPowerUnknown:
		return BatteryUnknown
	case UPowerCharging, UPowerPendingCharge:
		return BatteryCharging
	case UPowerFullyCharged:
		return BatteryFull
	default:
		return BatteryDischarging
	}
}

// ThermalStatus is a raw thermal level, from no pressure up to imminent
// shutdown.
type ThermalStatus int

const (
	ThermalStatusNone ThermalStatus = iota
	ThermalStatusLight
	ThermalStatusModerate
	ThermalStatusSevere
	ThermalStatusCritical
	ThermalStatusEmergency
	ThermalStatusShutdown
)

// ClassifyThermalStatus buckets a raw thermal level. The mapping is monotonic.
func ClassifyThermalStatus(status ThermalStatus) ThermalState {
	switch status {
	case ThermalStatusNone:
		return ThermalSafe
	case ThermalStatusLight, ThermalStatusModerate:
		return ThermalFair
	case ThermalStatusSevere:
		return ThermalSerious
	case ThermalStatusCritical, ThermalStatusEmergency, ThermalStatusShutdown:
		return ThermalCritical
	default:
		return ThermalUnknown
	}
}

// BatteryLevel converts a raw charge reading to a percentage, rounded to the
// nearest integer. A missing or non-positive scale yields 0.
func BatteryLevel(raw, scale float64) float64 {
	if scale <= 0 || raw < 0 || math.IsNaN(raw) || math.IsNaN(scale) {
		return 0
	}
	return math.Round(raw * 100 / scale)
}
