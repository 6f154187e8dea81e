package monitor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/collector"
	"github.com/cptspacemanspiff/eco-monitor/internal/connectivity"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
)

const (
	nmName             = "org.freedesktop.NetworkManager"
	nmPath             = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface            = "org.freedesktop.NetworkManager"
	nmActiveIface      = "org.freedesktop.NetworkManager.Connection.Active"
	nmDeviceIface      = "org.freedesktop.NetworkManager.Device"
	nmWirelessIface    = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAccessPointIface = "org.freedesktop.NetworkManager.AccessPoint"

	mmName       = "org.freedesktop.ModemManager1"
	mmPath       = dbus.ObjectPath("/org/freedesktop/ModemManager1")
	mmModemIface = "org.freedesktop.ModemManager1.Modem"
)

// NMDeviceType values.
const (
	nmDeviceEthernet = 1
	nmDeviceWiFi     = 2
	nmDeviceModem    = 8
	nmDeviceWiMAX    = 7
)

// nmDevice is the part of an NM device that decides its transport.
type nmDevice struct {
	Path        dbus.ObjectPath
	Type        uint32
	Interface   string
	AccessPoint dbus.ObjectPath
	// Strength is the access point signal quality in percent, -1 if unknown.
	Strength int
}

// NetworkManager implements connectivity.Platform on top of NetworkManager,
// asking ModemManager for the cellular radio technology.
type NetworkManager struct {
	conn *dbus.Conn
	log  *slog.Logger

	// wirelessSignal reads the kernel's dBm figure for an interface.
	wirelessSignal func(iface string) (int64, error)
	// property reads one NetworkManager object property.
	property func(path dbus.ObjectPath, iface, prop string, out any) error
}

// NewNetworkManager creates the NetworkManager platform.
func NewNetworkManager(conn *dbus.Conn, logger *slog.Logger) *NetworkManager {
	return &NetworkManager{
		conn:           conn,
		log:            logger,
		wirelessSignal: collector.WirelessSignal,
		property: func(path dbus.ObjectPath, iface, prop string, out any) error {
			return getProperty(conn, nmName, path, iface, prop, out)
		},
	}
}

func (n *NetworkManager) Negotiate() stream.Capability {
	if !nameHasOwner(n.conn, nmName) {
		return stream.Unsupported
	}
	var primary dbus.ObjectPath
	return negotiateRead(getProperty(n.conn, nmName, nmPath, nmIface, "PrimaryConnection", &primary))
}

func (n *NetworkManager) DefaultNetwork() (connectivity.Network, bool) {
	var primary dbus.ObjectPath
	if err := getProperty(n.conn, nmName, nmPath, nmIface, "PrimaryConnection", &primary); err != nil {
		n.log.Debug("read primary connection", "err", err)
		return "", false
	}
	if primary == "/" || !primary.IsValid() {
		return "", false
	}
	return connectivity.Network(primary), true
}

// Capabilities resolves the devices of an active connection. A connection
// that no longer exists yields nil.
func (n *NetworkManager) Capabilities(network connectivity.Network) *connectivity.Capabilities {
	devices, err := n.devices(dbus.ObjectPath(network))
	if err != nil {
		n.log.Debug("read connection devices", "network", network, "err", err)
		return nil
	}
	return n.capsFromDevices(devices)
}

func (n *NetworkManager) devices(active dbus.ObjectPath) ([]nmDevice, error) {
	var paths []dbus.ObjectPath
	if err := n.property(active, nmActiveIface, "Devices", &paths); err != nil {
		return nil, err
	}

	devices := make([]nmDevice, 0, len(paths))
	for _, p := range paths {
		d := nmDevice{Path: p, Strength: -1}
		if err := n.property(p, nmDeviceIface, "DeviceType", &d.Type); err != nil {
			n.log.Debug("read device type", "device", p, "err", err)
			continue
		}
		// Without an interface name the kernel signal fallback is skipped.
		if err := n.property(p, nmDeviceIface, "Interface", &d.Interface); err != nil {
			n.log.Debug("read device interface", "device", p, "err", err)
		}
		if d.Type == nmDeviceWiFi {
			if err := n.property(p, nmWirelessIface, "ActiveAccessPoint", &d.AccessPoint); err == nil && d.AccessPoint != "/" {
				var strength byte
				if err := n.property(d.AccessPoint, nmAccessPointIface, "Strength", &strength); err == nil {
					d.Strength = int(strength)
				}
			}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (n *NetworkManager) capsFromDevices(devices []nmDevice) *connectivity.Capabilities {
	caps := &connectivity.Capabilities{}
	for _, d := range devices {
		switch d.Type {
		case nmDeviceEthernet:
			caps.Transports |= connectivity.TransportEthernet
		case nmDeviceWiFi, nmDeviceWiMAX:
			caps.Transports |= connectivity.TransportWiFi
			if caps.WifiSignal == nil {
				caps.WifiSignal = n.signalFor(d)
			}
		case nmDeviceModem:
			caps.Transports |= connectivity.TransportCellular
		}
	}
	return caps
}

// signalFor prefers the kernel dBm reading and falls back to converting the
// access point quality percentage.
func (n *NetworkManager) signalFor(d nmDevice) *int64 {
	if d.Interface != "" && n.wirelessSignal != nil {
		if dbm, err := n.wirelessSignal(d.Interface); err == nil {
			return &dbm
		}
	}
	if d.Strength < 0 {
		return nil
	}
	dbm := strengthToDBm(d.Strength)
	return &dbm
}

// strengthToDBm maps NetworkManager's 0-100 quality to dBm using the same
// linear scale NetworkManager uses in the other direction.
func strengthToDBm(strength int) int64 {
	if strength > 100 {
		strength = 100
	}
	return int64(strength/2 - 100)
}

// RadioTechnology returns the most advanced access technology reported by
// any ModemManager modem.
func (n *NetworkManager) RadioTechnology() connectivity.RadioTechnology {
	return modemRadio(n.conn, n.log)
}

func modemRadio(conn *dbus.Conn, logger *slog.Logger) connectivity.RadioTechnology {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := conn.Object(mmName, mmPath).
		Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).
		Store(&objects)
	if err != nil {
		logger.Debug("list modems", "err", err)
		return connectivity.RadioUnknown
	}
	return radioFromManagedObjects(objects)
}

func radioFromManagedObjects(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) connectivity.RadioTechnology {
	var mask uint32
	for _, ifaces := range objects {
		props, ok := ifaces[mmModemIface]
		if !ok {
			continue
		}
		if v, ok := props["AccessTechnologies"]; ok {
			if bits, ok := v.Value().(uint32); ok {
				mask |= bits
			}
		}
	}
	return connectivity.RadioFromAccessTechnologies(mask)
}

// RegisterDefaultNetworkCallback follows PrimaryConnection changes and
// property changes on the primary connection's devices and modems.
func (n *NetworkManager) RegisterDefaultNetworkCallback(cb connectivity.Callbacks) (stream.Handle, error) {
	t := &primaryTracker{nm: n, cb: cb}
	if network, ok := n.DefaultNetwork(); ok {
		t.primary = network
		t.refreshWatched()
	}

	w, err := watchSignals(n.conn, t.handle,
		propertiesChangedMatch(nmPath, nmIface),
		namespaceChangedMatch(nmPath+"/Devices"),
		namespaceChangedMatch(nmPath+"/AccessPoint"),
		namespaceChangedMatch(mmPath),
	)
	if err != nil {
		return nil, fmt.Errorf("watch networkmanager: %w", err)
	}
	return w, nil
}

// primaryTracker turns NetworkManager signals into default-network
// callbacks.
type primaryTracker struct {
	nm *NetworkManager
	cb connectivity.Callbacks

	mu      sync.Mutex
	primary connectivity.Network
	watched map[dbus.ObjectPath]bool
}

func (t *primaryTracker) handle(sig *dbus.Signal) {
	iface, props, ok := changedProperties(sig)
	if !ok {
		return
	}

	switch {
	case sig.Path == nmPath && iface == nmIface:
		v, ok := props["PrimaryConnection"]
		if !ok {
			return
		}
		next, _ := v.Value().(dbus.ObjectPath)
		t.primaryChanged(next)

	case iface == mmModemIface:
		if _, ok := props["AccessTechnologies"]; ok {
			t.capabilitiesChanged()
		}

	case iface == nmDeviceIface || iface == nmWirelessIface || iface == nmAccessPointIface:
		t.mu.Lock()
		relevant := t.watched[sig.Path]
		t.mu.Unlock()
		if relevant && hasAny(props, "DeviceType", "State", "ActiveAccessPoint", "Strength") {
			t.capabilitiesChanged()
		}
	}
}

func (t *primaryTracker) primaryChanged(next dbus.ObjectPath) {
	t.mu.Lock()
	prev := t.primary
	if next == "" || next == "/" {
		t.primary = ""
	} else {
		t.primary = connectivity.Network(next)
	}
	current := t.primary
	t.mu.Unlock()

	if current == prev {
		return
	}
	t.refreshWatched()
	if current == "" {
		if prev != "" && t.cb.Lost != nil {
			t.cb.Lost(prev)
		}
		return
	}
	if t.cb.Available != nil {
		t.cb.Available(current)
	}
}

func (t *primaryTracker) capabilitiesChanged() {
	t.mu.Lock()
	current := t.primary
	t.mu.Unlock()
	if current == "" {
		return
	}
	t.refreshWatched()
	if t.cb.CapabilitiesChanged != nil {
		t.cb.CapabilitiesChanged(current, t.nm.Capabilities(current))
	}
}

// refreshWatched records which device and access point paths belong to the
// primary connection.
func (t *primaryTracker) refreshWatched() {
	t.mu.Lock()
	current := t.primary
	t.mu.Unlock()

	watched := make(map[dbus.ObjectPath]bool)
	if current != "" {
		if devices, err := t.nm.devices(dbus.ObjectPath(current)); err == nil {
			for _, d := range devices {
				watched[d.Path] = true
				if d.AccessPoint != "" && d.AccessPoint != "/" {
					watched[d.AccessPoint] = true
				}
			}
		}
	}

	t.mu.Lock()
	t.watched = watched
	t.mu.Unlock()
}
