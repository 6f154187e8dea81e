package telemetry

import (
	"encoding/json"
	"fmt"
)

// BatteryState is the charging state reported to clients.
type BatteryState uint8

const (
	BatteryCharging BatteryState = iota
	BatteryDischarging
	BatteryFull
	BatteryUnknown
)

func (s BatteryState) String() string {
	switch s {
	case BatteryCharging:
		return "CHARGING"
	case BatteryDischarging:
		return "DISCHARGING"
	case BatteryFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

func (s BatteryState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *BatteryState) UnmarshalText(text []byte) error {
	for _, v := range []BatteryState{BatteryCharging, BatteryDischarging, BatteryFull, BatteryUnknown} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown battery state %q", text)
}

// ThermalState is the device thermal pressure, ordered by severity.
// ThermalUnknown sits outside the order.
type ThermalState uint8

const (
	ThermalSafe ThermalState = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
	ThermalUnknown
)

func (s ThermalState) String() string {
	switch s {
	case ThermalSafe:
		return "SAFE"
	case ThermalFair:
		return "FAIR"
	case ThermalSerious:
		return "SERIOUS"
	case ThermalCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Less reports whether s is strictly less severe than other. Comparisons
// involving ThermalUnknown are always false.
func (s ThermalState) Less(other ThermalState) bool {
	if s >= ThermalUnknown || other >= ThermalUnknown {
		return false
	}
	return s < other
}

func (s ThermalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ThermalState) UnmarshalText(text []byte) error {
	for _, v := range []ThermalState{ThermalSafe, ThermalFair, ThermalSerious, ThermalCritical, ThermalUnknown} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown thermal state %q", text)
}

// ConnectivityType is the coarse class of the active network. Not ordered.
type ConnectivityType uint8

const (
	ConnectivityNone ConnectivityType = iota
	ConnectivityEthernet
	ConnectivityWiFi
	ConnectivityMobile2G
	ConnectivityMobile3G
	ConnectivityMobile4G
	ConnectivityMobile5G
	ConnectivityUnknown
)

var connectivityNames = [...]string{
	ConnectivityNone:     "NONE",
	ConnectivityEthernet: "ETHERNET",
	ConnectivityWiFi:     "WIFI",
	ConnectivityMobile2G: "MOBILE2G",
	ConnectivityMobile3G: "MOBILE3G",
	ConnectivityMobile4G: "MOBILE4G",
	ConnectivityMobile5G: "MOBILE5G",
	ConnectivityUnknown:  "UNKNOWN",
}

func (t ConnectivityType) String() string {
	if int(t) < len(connectivityNames) {
		return connectivityNames[t]
	}
	return "UNKNOWN"
}

func (t ConnectivityType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ConnectivityType) UnmarshalText(text []byte) error {
	for i, name := range connectivityNames {
		if name == string(text) {
			*t = ConnectivityType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connectivity type %q", text)
}

// Connectivity is a point-in-time snapshot of the active network.
// WifiSignalStrength is an RSSI in dBm, present only for WiFi when the
// platform exposes it.
type Connectivity struct {
	Type               ConnectivityType `json:"type"`
	WifiSignalStrength *int64           `json:"wifiSignalStrength,omitempty"`
}

// JSON returns the serialized record pushed on the connectivity channel.
func (c Connectivity) JSON() string {
	data, err := json.Marshal(c)
	if err != nil {
		return `{"type":"UNKNOWN"}`
	}
	return string(data)
}
