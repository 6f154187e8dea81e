package monitor

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	upowerName        = "org.freedesktop.UPower"
	upowerDeviceIface = "org.freedesktop.UPower.Device"
	displayDevicePath = dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")

	upowerTypeBattery = 2
)

// UPower reads the composite DisplayDevice battery from UPower.
type UPower struct {
	conn *dbus.Conn
	log  *slog.Logger
}

// NewUPower creates a UPower backend on the system bus connection.
func NewUPower(conn *dbus.Conn, logger *slog.Logger) *UPower {
	return &UPower{conn: conn, log: logger}
}

func (u *UPower) Name() string { return "upower" }

// Negotiate requires UPower to be running and to report a battery.
func (u *UPower) Negotiate() stream.Capability {
	if !nameHasOwner(u.conn, upowerName) {
		return stream.Unsupported
	}
	var present bool
	err := getProperty(u.conn, upowerName, displayDevicePath, upowerDeviceIface, "IsPresent", &present)
	if err != nil {
		return negotiateRead(err)
	}
	var typ uint32
	if err := getProperty(u.conn, upowerName, displayDevicePath, upowerDeviceIface, "Type", &typ); err != nil {
		return negotiateRead(err)
	}
	if !present || typ != upowerTypeBattery {
		return stream.Unsupported
	}
	return stream.Supported
}

func (u *UPower) Read() (BatteryReading, error) {
	var state uint32
	if err := getProperty(u.conn, upowerName, displayDevicePath, upowerDeviceIface, "State", &state); err != nil {
		return BatteryReading{}, err
	}
	var pct float64
	if err := getProperty(u.conn, upowerName, displayDevicePath, upowerDeviceIface, "Percentage", &pct); err != nil {
		return BatteryReading{}, err
	}
	return BatteryReading{
		Level: telemetry.BatteryLevel(pct, 100),
		State: telemetry.ClassifyUPowerState(telemetry.UPowerState(state)),
	}, nil
}

// Watch fires on every DisplayDevice property change that touches the
// state or the charge level.
func (u *UPower) Watch(changed func()) (stream.Handle, error) {
	w, err := watchSignals(u.conn, func(sig *dbus.Signal) {
		if sig.Path != displayDevicePath {
			return
		}
		iface, props, ok := changedProperties(sig)
		if !ok || iface != upowerDeviceIface {
			return
		}
		if hasAny(props, "State", "Percentage", "IsPresent") {
			changed()
		}
	}, propertiesChangedMatch(displayDevicePath, upowerDeviceIface))
	if err != nil {
		return nil, fmt.Errorf("watch upower: %w", err)
	}
	return w, nil
}

type powerProfilesService struct {
	name string
	path dbus.ObjectPath
}

// Newer power-profiles-daemon releases moved under the UPower namespace and
// keep the old name as an alias.
var powerProfilesServices = []powerProfilesService{
	{"org.freedesktop.UPower.PowerProfiles", "/org/freedesktop/UPower/PowerProfiles"},
	{"net.hadess.PowerProfiles", "/net/hadess/PowerProfiles"},
}

// PowerProfiles reads the active power-profiles-daemon profile. The
// "power-saver" profile is low-power mode.
type PowerProfiles struct {
	conn *dbus.Conn
	log  *slog.Logger
}

// NewPowerProfiles creates a power-profiles-daemon backend.
func NewPowerProfiles(conn *dbus.Conn, logger *slog.Logger) *PowerProfiles {
	return &PowerProfiles{conn: conn, log: logger}
}

func (p *PowerProfiles) Name() string { return "power-profiles-daemon" }

func (p *PowerProfiles) service() (powerProfilesService, bool) {
	for _, s := range powerProfilesServices {
		if nameHasOwner(p.conn, s.name) {
			return s, true
		}
	}
	return powerProfilesService{}, false
}

func (p *PowerProfiles) Negotiate() stream.Capability {
	svc, ok := p.service()
	if !ok {
		return stream.Unsupported
	}
	var profile string
	return negotiateRead(getProperty(p.conn, svc.name, svc.path, svc.name, "ActiveProfile", &profile))
}

func (p *PowerProfiles) Read() (bool, error) {
	svc, ok := p.service()
	if !ok {
		return false, fmt.Errorf("power-profiles-daemon not running: %w", telemetry.ErrUnsupported)
	}
	var profile string
	if err := getProperty(p.conn, svc.name, svc.path, svc.name, "ActiveProfile", &profile); err != nil {
		return false, err
	}
	return profile == "power-saver", nil
}

func (p *PowerProfiles) Watch(changed func()) (stream.Handle, error) {
	svc, ok := p.service()
	if !ok {
		return nil, fmt.Errorf("power-profiles-daemon not running: %w", telemetry.ErrUnsupported)
	}
	w, err := watchSignals(p.conn, func(sig *dbus.Signal) {
		if sig.Path != svc.path {
			return
		}
		iface, props, ok := changedProperties(sig)
		if ok && iface == svc.name && hasAny(props, "ActiveProfile") {
			changed()
		}
	}, propertiesChangedMatch(svc.path, svc.name))
	if err != nil {
		return nil, fmt.Errorf("watch power profiles: %w", err)
	}
	return w, nil
}

func hasAny(props map[string]dbus.Variant, names ...string) bool {
	for _, n := range names {
		if _, ok := props[n]; ok {
			return true
		}
	}
	return false
}
