package connectivity

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

type fakePlatform struct {
	capability stream.Capability
	networks   map[Network]*Capabilities
	def        Network
	radio      RadioTechnology
	radioReads int
	cb         Callbacks
	closed     bool
}

func (f *fakePlatform) Negotiate() stream.Capability { return f.capability }

func (f *fakePlatform) DefaultNetwork() (Network, bool) {
	if f.def == "" {
		return "", false
	}
	return f.def, true
}

func (f *fakePlatform) Capabilities(n Network) *Capabilities { return f.networks[n] }

func (f *fakePlatform) RadioTechnology() RadioTechnology {
	f.radioReads++
	return f.radio
}

func (f *fakePlatform) RegisterDefaultNetworkCallback(cb Callbacks) (stream.Handle, error) {
	f.cb = cb
	return stream.HandleFunc(func() error { f.closed = true; return nil }), nil
}

type fakeLegacy struct {
	capability stream.Capability
	kind       LegacyKind
	active     bool
	radio      RadioTechnology
	changed    func()
}

func (f *fakeLegacy) Negotiate() stream.Capability { return f.capability }

func (f *fakeLegacy) ActiveNetwork() (LegacyKind, bool) { return f.kind, f.active }

func (f *fakeLegacy) RadioTechnology() RadioTechnology { return f.radio }

func (f *fakeLegacy) RegisterChangeReceiver(changed func()) (stream.Handle, error) {
	f.changed = changed
	return stream.HandleFunc(func() error { return nil }), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(events *[]telemetry.Connectivity) func(telemetry.Connectivity) {
	return func(c telemetry.Connectivity) { *events = append(*events, c) }
}

func TestSource_ModernCallbacksFunnelThroughClassifier(t *testing.T) {
	rssi := int64(-48)
	p := &fakePlatform{
		capability: stream.Supported,
		networks: map[Network]*Capabilities{
			"wifi": {Transports: TransportWiFi, WifiSignal: &rssi},
			"cell": {Transports: TransportCellular},
		},
		def:   "wifi",
		radio: RadioLTE,
	}
	src := NewSource(p, nil, testLogger())

	var events []telemetry.Connectivity
	h, err := src.Register(collect(&events))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != telemetry.ConnectivityWiFi || *events[0].WifiSignalStrength != -48 {
		t.Fatalf("initial events = %+v, want one WIFI -48", events)
	}
	if p.radioReads != 0 {
		t.Fatalf("radioReads = %d, want 0 for a wifi network", p.radioReads)
	}

	p.cb.Available("cell")
	p.cb.CapabilitiesChanged("cell", &Capabilities{Transports: TransportEthernet})
	delete(p.networks, "cell")
	p.cb.Lost("cell")

	want := []telemetry.ConnectivityType{
		telemetry.ConnectivityWiFi,
		telemetry.ConnectivityMobile4G,
		telemetry.ConnectivityEthernet,
		telemetry.ConnectivityNone,
	}
	if len(events) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Type != w {
			t.Fatalf("events[%d] = %v, want %v", i, events[i].Type, w)
		}
	}

	h.Close()
	if !p.closed {
		t.Fatal("handle did not deregister the callback")
	}
}

func TestSource_ModernWithoutDefaultNetwork(t *testing.T) {
	p := &fakePlatform{capability: stream.Supported}
	src := NewSource(p, &fakeLegacy{capability: stream.Supported, kind: LegacyWiFi, active: true}, testLogger())

	if got := src.Current(); got.Type != telemetry.ConnectivityNone {
		t.Fatalf("Current() = %v, want NONE", got.Type)
	}
}

func TestSource_FallsBackToLegacy(t *testing.T) {
	legacy := &fakeLegacy{capability: stream.Supported, kind: LegacyMobile, active: true, radio: RadioHSDPA}
	src := NewSource(&fakePlatform{capability: stream.Unsupported}, legacy, testLogger())

	if got := src.Negotiate(); got != stream.Supported {
		t.Fatalf("Negotiate() = %v, want supported", got)
	}

	var events []telemetry.Connectivity
	if _, err := src.Register(collect(&events)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	legacy.kind = LegacyWiMAX
	legacy.changed()
	legacy.active = false
	legacy.changed()

	want := []telemetry.ConnectivityType{
		telemetry.ConnectivityMobile3G,
		telemetry.ConnectivityWiFi,
		telemetry.ConnectivityNone,
	}
	if len(events) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Type != w {
			t.Fatalf("events[%d] = %v, want %v", i, events[i].Type, w)
		}
	}
}

func TestSource_Unsupported(t *testing.T) {
	src := NewSource(nil, nil, testLogger())

	if got := src.Negotiate(); got != stream.Unsupported {
		t.Fatalf("Negotiate() = %v, want unsupported", got)
	}
	if got := src.Current(); got.Type != telemetry.ConnectivityUnknown {
		t.Fatalf("Current() = %v, want UNKNOWN", got.Type)
	}
	if _, err := src.Register(func(telemetry.Connectivity) {}); err == nil {
		t.Fatal("Register() error = nil, want ErrNotSupported")
	}
}

func TestSource_DeniedWhenNothingSupported(t *testing.T) {
	src := NewSource(&fakePlatform{capability: stream.Denied}, &fakeLegacy{capability: stream.Unsupported}, testLogger())

	if got := src.Negotiate(); got != stream.Denied {
		t.Fatalf("Negotiate() = %v, want denied", got)
	}
}
