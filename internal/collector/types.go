package collector

import (
	"fmt"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Roots of the kernel pseudo filesystems. Tests point these at temp trees.
var (
	sysfsRoot = "/sys"
	procRoot  = "/proc"
	etcRoot   = "/etc"
)

// BatterySample holds a snapshot of battery state from /sys/class/power_supply/BAT*.
// Level and Scale are the raw charge reading; the percentage is Level*100/Scale.
type BatterySample struct {
	Timestamp int64                       `json:"timestamp"`
	Status    telemetry.PowerSupplyStatus `json:"status"`
	Level     float64                     `json:"level"`
	Scale     float64                     `json:"scale"`
	ACOnline  bool                        `json:"ac_online"`
}

// Percent returns the battery level as a rounded percentage.
func (s *BatterySample) Percent() float64 {
	return telemetry.BatteryLevel(s.Level, s.Scale)
}

// ThermalSample is the hottest thermal zone relative to its trip points.
type ThermalSample struct {
	Timestamp  int64                   `json:"timestamp"`
	Zone       string                  `json:"zone"`
	TempMilliC int64                   `json:"temp_millic"`
	Status     telemetry.ThermalStatus `json:"status"`
}

// MemInfo holds /proc/meminfo totals in bytes.
type MemInfo struct {
	TotalBytes     int64 `json:"total_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// StorageInfo holds filesystem capacity for a mount point in bytes.
type StorageInfo struct {
	Path       string `json:"path"`
	TotalBytes int64  `json:"total_bytes"`
	FreeBytes  int64  `json:"free_bytes"`
}

// PlatformInfo describes the running kernel and distribution.
type PlatformInfo struct {
	Release  string `json:"release"`
	NodeName string `json:"node_name"`
	Machine  string `json:"machine"`
	OS       string `json:"os"`
}

func (p PlatformInfo) String() string {
	return fmt.Sprintf("Linux - %s - %s - %s - %s", p.Release, p.NodeName, p.Machine, p.OS)
}

// InterfaceKind is the coarse link type of a network interface.
type InterfaceKind int

const (
	InterfaceOther InterfaceKind = iota
	InterfaceEthernet
	InterfaceWiFi
	InterfaceWiMAX
	InterfaceMobile
)

// Route is a default route entry from /proc/net/route.
type Route struct {
	Interface string
	Metric    int64
}
