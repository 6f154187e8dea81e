package bridge

import "github.com/cptspacemanspiff/eco-monitor/internal/telemetry"

// Query method names.
const (
	MethodPlatformInfo   = "getPlatformInfo"
	MethodBatteryLevel   = "getBatteryLevel"
	MethodBatteryState   = "getBatteryState"
	MethodLowPowerMode   = "isBatteryInLowPowerMode"
	MethodThermalState   = "getThermalState"
	MethodProcessorCount = "getProcessorCount"
	MethodTotalMemory    = "getTotalMemory"
	MethodFreeMemory     = "getFreeMemory"
	MethodTotalStorage   = "getTotalStorage"
	MethodFreeStorage    = "getFreeStorage"
	MethodEcoScore       = "getEcoScore"
	MethodIsLowEndDevice = "isLowEndDevice"
	MethodConnectivity   = "getConnectivity"
)

// Device is the query façade the bridge dispatches to.
type Device interface {
	PlatformInfo() string
	BatteryLevel() float64
	BatteryState() telemetry.BatteryState
	IsBatteryInLowPowerMode() bool
	ThermalState() telemetry.ThermalState
	ProcessorCount() int
	TotalMemory() int64
	FreeMemory() int64
	TotalStorage() (int64, error)
	FreeStorage() (int64, error)
	EcoScore() (float64, error)
	IsLowEndDevice() (bool, error)
	Connectivity() telemetry.Connectivity
	ScoreBreakdown() (map[string]bool, error)
}

func handlers(d Device) map[string]func() (any, error) {
	return map[string]func() (any, error){
		MethodPlatformInfo:   func() (any, error) { return d.PlatformInfo(), nil },
		MethodBatteryLevel:   func() (any, error) { return d.BatteryLevel(), nil },
		MethodBatteryState:   func() (any, error) { return d.BatteryState(), nil },
		MethodLowPowerMode:   func() (any, error) { return d.IsBatteryInLowPowerMode(), nil },
		MethodThermalState:   func() (any, error) { return d.ThermalState(), nil },
		MethodProcessorCount: func() (any, error) { return d.ProcessorCount(), nil },
		MethodTotalMemory:    func() (any, error) { return d.TotalMemory(), nil },
		MethodFreeMemory:     func() (any, error) { return d.FreeMemory(), nil },
		MethodTotalStorage:   func() (any, error) { return d.TotalStorage() },
		MethodFreeStorage:    func() (any, error) { return d.FreeStorage() },
		MethodEcoScore:       func() (any, error) { return d.EcoScore() },
		MethodIsLowEndDevice: func() (any, error) { return d.IsLowEndDevice() },
		MethodConnectivity:   func() (any, error) { return d.Connectivity(), nil },
	}
}
