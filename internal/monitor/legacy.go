package monitor

import (
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/collector"
	"github.com/cptspacemanspiff/eco-monitor/internal/connectivity"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
)

// RouteTable is the legacy connectivity platform for hosts without
// NetworkManager: the interface carrying the default route is the active
// network, and the route table is polled for changes.
type RouteTable struct {
	interval time.Duration
	log      *slog.Logger
	radio    func() connectivity.RadioTechnology

	readTable    func() (string, error)
	defaultRoute func() (*collector.Route, error)
	kind         func(iface string) collector.InterfaceKind
}

// NewRouteTable creates the legacy platform. conn may be nil; when set,
// ModemManager supplies the radio technology for cellular interfaces.
func NewRouteTable(interval time.Duration, conn *dbus.Conn, logger *slog.Logger) *RouteTable {
	rt := &RouteTable{
		interval:     interval,
		log:          logger,
		radio:        func() connectivity.RadioTechnology { return connectivity.RadioUnknown },
		readTable:    collector.ReadRouteTable,
		defaultRoute: collector.DefaultRoute,
		kind:         collector.InterfaceKind,
	}
	if conn != nil {
		rt.radio = func() connectivity.RadioTechnology { return modemRadio(conn, logger) }
	}
	return rt
}

func (r *RouteTable) Negotiate() stream.Capability {
	_, err := r.readTable()
	return negotiateRead(err)
}

func (r *RouteTable) ActiveNetwork() (connectivity.LegacyKind, bool) {
	route, err := r.defaultRoute()
	if err != nil {
		return connectivity.LegacyNone, false
	}
	switch r.kind(route.Interface) {
	case collector.InterfaceEthernet:
		return connectivity.LegacyEthernet, true
	case collector.InterfaceWiFi:
		return connectivity.LegacyWiFi, true
	case collector.InterfaceWiMAX:
		return connectivity.LegacyWiMAX, true
	case collector.InterfaceMobile:
		return connectivity.LegacyMobile, true
	default:
		return connectivity.LegacyOther, true
	}
}

func (r *RouteTable) RadioTechnology() connectivity.RadioTechnology {
	return r.radio()
}

func (r *RouteTable) RegisterChangeReceiver(changed func()) (stream.Handle, error) {
	return Poll(r.interval, r.readTable, changed, r.log), nil
}
