package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/collector"
	"github.com/cptspacemanspiff/eco-monitor/internal/connectivity"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

func TestSysfsBattery_Read(t *testing.T) {
	b := NewSysfsBattery(time.Second, testLogger())
	b.present = func() bool { return true }
	b.collect = func() (*collector.BatterySample, error) {
		return &collector.BatterySample{Status: telemetry.PowerSupplyNotCharging, Level: 1, Scale: 2}, nil
	}

	if got := b.Negotiate(); got != stream.Supported {
		t.Fatalf("Negotiate() = %v, want supported", got)
	}
	r, err := b.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Level != 50 || r.State != telemetry.BatteryDischarging {
		t.Fatalf("Read() = %+v, want 50%% DISCHARGING", r)
	}

	b.present = func() bool { return false }
	if got := b.Negotiate(); got != stream.Unsupported {
		t.Fatalf("Negotiate() = %v, want unsupported", got)
	}
}

func TestPlatformProfile(t *testing.T) {
	p := NewPlatformProfile(time.Second, testLogger())
	p.present = func() bool { return true }
	p.read = func() (string, error) { return "low-power", nil }

	if got := p.Negotiate(); got != stream.Supported {
		t.Fatalf("Negotiate() = %v, want supported", got)
	}
	if on, err := p.Read(); err != nil || !on {
		t.Fatalf("Read() = %v, %v, want true", on, err)
	}

	p.read = func() (string, error) { return "", fmt.Errorf("platform_profile: %w", telemetry.ErrDenied) }
	if got := p.Negotiate(); got != stream.Denied {
		t.Fatalf("Negotiate() = %v, want denied", got)
	}
	p.read = func() (string, error) { return "", fmt.Errorf("platform_profile: %w", telemetry.ErrUnsupported) }
	if got := p.Negotiate(); got != stream.Unsupported {
		t.Fatalf("Negotiate() = %v, want unsupported", got)
	}

	reads := 0
	p.present = func() bool { return false }
	p.read = func() (string, error) { reads++; return "low-power", nil }
	if got := p.Negotiate(); got != stream.Unsupported || reads != 0 {
		t.Fatalf("Negotiate() without attribute = %v after %d reads, want unsupported without reading", got, reads)
	}
}

func TestRouteTable_ActiveNetwork(t *testing.T) {
	rt := NewRouteTable(time.Second, nil, testLogger())
	rt.readTable = func() (string, error) { return "Iface\n", nil }
	rt.kind = func(iface string) collector.InterfaceKind {
		switch iface {
		case "eth0":
			return collector.InterfaceEthernet
		case "wlan0":
			return collector.InterfaceWiFi
		case "wmx0":
			return collector.InterfaceWiMAX
		case "wwan0":
			return collector.InterfaceMobile
		}
		return collector.InterfaceOther
	}

	tests := map[string]connectivity.LegacyKind{
		"eth0":  connectivity.LegacyEthernet,
		"wlan0": connectivity.LegacyWiFi,
		"wmx0":  connectivity.LegacyWiMAX,
		"wwan0": connectivity.LegacyMobile,
		"tun0":  connectivity.LegacyOther,
	}
	for iface, want := range tests {
		rt.defaultRoute = func() (*collector.Route, error) { return &collector.Route{Interface: iface}, nil }
		got, ok := rt.ActiveNetwork()
		if !ok || got != want {
			t.Fatalf("ActiveNetwork(%s) = %v, %v, want %v", iface, got, ok, want)
		}
	}

	rt.defaultRoute = func() (*collector.Route, error) { return nil, telemetry.ErrUnavailable }
	if _, ok := rt.ActiveNetwork(); ok {
		t.Fatal("ActiveNetwork() ok = true without a default route")
	}
	if got := rt.RadioTechnology(); got != connectivity.RadioUnknown {
		t.Fatalf("RadioTechnology() = %v without a bus, want unknown", got)
	}
	if got := rt.Negotiate(); got != stream.Supported {
		t.Fatalf("Negotiate() = %v, want supported", got)
	}
}

func TestRouteTable_FeedsLegacyClassifier(t *testing.T) {
	rt := NewRouteTable(time.Second, nil, testLogger())
	rt.readTable = func() (string, error) { return "", nil }
	rt.defaultRoute = func() (*collector.Route, error) { return &collector.Route{Interface: "wwan0"}, nil }
	rt.kind = func(string) collector.InterfaceKind { return collector.InterfaceMobile }
	rt.radio = func() connectivity.RadioTechnology { return connectivity.RadioLTE }

	src := connectivity.NewSource(nil, rt, testLogger())
	if got := src.Current(); got.Type != telemetry.ConnectivityMobile4G {
		t.Fatalf("Current() = %v, want MOBILE4G", got.Type)
	}
}

func TestCapsFromDevices(t *testing.T) {
	n := &NetworkManager{log: testLogger(), wirelessSignal: func(iface string) (int64, error) {
		if iface == "wlan0" {
			return -47, nil
		}
		return 0, telemetry.ErrUnavailable
	}}

	caps := n.capsFromDevices([]nmDevice{{Type: nmDeviceWiFi, Interface: "wlan0", Strength: 80}})
	if !caps.Transports.Has(connectivity.TransportWiFi) || caps.WifiSignal == nil || *caps.WifiSignal != -47 {
		t.Fatalf("capsFromDevices(wifi) = %+v, want wifi -47", caps)
	}

	caps = n.capsFromDevices([]nmDevice{{Type: nmDeviceWiFi, Interface: "wlan1", Strength: 70}})
	if caps.WifiSignal == nil || *caps.WifiSignal != -65 {
		t.Fatalf("capsFromDevices(wifi, no kernel stats) signal = %v, want -65", caps.WifiSignal)
	}

	caps = n.capsFromDevices([]nmDevice{
		{Type: nmDeviceModem},
		{Type: nmDeviceEthernet},
	})
	if got := connectivity.Classify(caps, connectivity.RadioLTE); got != telemetry.ConnectivityEthernet {
		t.Fatalf("Classify(modem+ethernet) = %v, want ETHERNET", got)
	}

	caps = n.capsFromDevices(nil)
	if got := connectivity.Classify(caps, connectivity.RadioUnknown); got != telemetry.ConnectivityNone {
		t.Fatalf("Classify(no devices) = %v, want NONE", got)
	}
}

func TestDevices_LogsFailedReads(t *testing.T) {
	var buf bytes.Buffer
	n := &NetworkManager{
		log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		property: func(path dbus.ObjectPath, iface, prop string, out any) error {
			switch {
			case prop == "Devices":
				*out.(*[]dbus.ObjectPath) = []dbus.ObjectPath{"/dev/1", "/dev/2"}
			case prop == "DeviceType" && path == "/dev/1":
				*out.(*uint32) = nmDeviceWiFi
			case prop == "ActiveAccessPoint":
				*out.(*dbus.ObjectPath) = "/ap/1"
			case prop == "Strength":
				*out.(*byte) = 60
			default:
				return fmt.Errorf("%s.%s: %w", iface, prop, telemetry.ErrUnavailable)
			}
			return nil
		},
	}

	devices, err := n.devices("/active/1")
	if err != nil {
		t.Fatalf("devices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Interface != "" || devices[0].Strength != 60 {
		t.Fatalf("devices() = %+v, want /dev/1 with strength 60 and no interface", devices)
	}

	out := buf.String()
	if !strings.Contains(out, "read device interface") || !strings.Contains(out, "device=/dev/1") {
		t.Fatalf("log = %q, want interface read failure for /dev/1", out)
	}
	if !strings.Contains(out, "read device type") || !strings.Contains(out, "device=/dev/2") {
		t.Fatalf("log = %q, want device type failure for /dev/2", out)
	}
}

func TestStrengthToDBm(t *testing.T) {
	tests := map[int]int64{0: -100, 50: -75, 100: -50, 120: -50}
	for in, want := range tests {
		if got := strengthToDBm(in); got != want {
			t.Fatalf("strengthToDBm(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRadioFromManagedObjects(t *testing.T) {
	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/freedesktop/ModemManager1/Modem/0": {
			mmModemIface: {"AccessTechnologies": dbus.MakeVariant(uint32(1 << 5))},
		},
		"/org/freedesktop/ModemManager1/Modem/1": {
			mmModemIface: {"AccessTechnologies": dbus.MakeVariant(uint32(1 << 14))},
		},
		"/org/freedesktop/ModemManager1/SIM/0": {
			"org.freedesktop.ModemManager1.Sim": {"Active": dbus.MakeVariant(true)},
		},
	}
	if got := radioFromManagedObjects(objects); got != connectivity.RadioLTE {
		t.Fatalf("radioFromManagedObjects() = %v, want LTE", got)
	}
	if got := radioFromManagedObjects(nil); got != connectivity.RadioUnknown {
		t.Fatalf("radioFromManagedObjects(nil) = %v, want unknown", got)
	}
}

func TestChangedProperties(t *testing.T) {
	sig := &dbus.Signal{
		Name: propertiesChanged,
		Body: []any{
			upowerDeviceIface,
			map[string]dbus.Variant{"Percentage": dbus.MakeVariant(55.0)},
			[]string{"State"},
		},
	}
	iface, props, ok := changedProperties(sig)
	if !ok || iface != upowerDeviceIface {
		t.Fatalf("changedProperties() = %q, %v", iface, ok)
	}
	if !hasAny(props, "State") || !hasAny(props, "Percentage") {
		t.Fatalf("props = %v, want Percentage and invalidated State", props)
	}

	if _, _, ok := changedProperties(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []any{true}}); ok {
		t.Fatal("changedProperties() ok = true for a non-properties signal")
	}
}

func TestSignalWatch_BurstKeepsOrder(t *testing.T) {
	w := newSignalWatch(nil, nil)
	for i := 0; i < signalBuffer; i++ {
		select {
		case w.ch <- &dbus.Signal{Name: propertiesChanged, Body: []any{i}}:
		default:
			t.Fatalf("signal buffer full after %d signals", i)
		}
	}

	var got []int
	all := make(chan struct{})
	go w.listen(func(sig *dbus.Signal) {
		got = append(got, sig.Body[0].(int))
		if len(got) == signalBuffer {
			close(all)
		}
	})
	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("burst not delivered")
	}
	close(w.done)
	<-w.stopped

	for i, v := range got {
		if v != i {
			t.Fatalf("signal %d delivered at position %d", v, i)
		}
	}
}

func TestMapDBusError(t *testing.T) {
	denied := dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied", Body: []any{"nope"}}
	if err := mapDBusError(denied); !errors.Is(err, telemetry.ErrDenied) {
		t.Fatalf("mapDBusError(AccessDenied) = %v, want ErrDenied", err)
	}
	if err := mapDBusError(&dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}); !errors.Is(err, telemetry.ErrUnsupported) {
		t.Fatalf("mapDBusError(ServiceUnknown) = %v, want ErrUnsupported", err)
	}
	plain := errors.New("eof")
	if err := mapDBusError(plain); err != plain {
		t.Fatalf("mapDBusError(plain) = %v, want unchanged", err)
	}
	if got := negotiateRead(mapDBusError(denied)); got != stream.Denied {
		t.Fatalf("negotiateRead(denied) = %v, want denied", got)
	}
}
