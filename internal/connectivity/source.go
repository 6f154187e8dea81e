package connectivity

import (
	"log/slog"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Network is an opaque handle to one network as reported by the platform.
type Network string

// Callbacks receives default-network changes. Any field may be nil.
type Callbacks struct {
	Available           func(Network)
	CapabilitiesChanged func(Network, *Capabilities)
	Lost                func(Network)
}

// Platform reports per-network capabilities and default-network callbacks.
type Platform interface {
	Negotiate() stream.Capability
	// DefaultNetwork returns the current default network, if any.
	DefaultNetwork() (Network, bool)
	// Capabilities returns nil once n is gone.
	Capabilities(n Network) *Capabilities
	RadioTechnology() RadioTechnology
	RegisterDefaultNetworkCallback(cb Callbacks) (stream.Handle, error)
}

// LegacyPlatform only offers an active-network query and a coarse
// "something changed" notification.
type LegacyPlatform interface {
	Negotiate() stream.Capability
	ActiveNetwork() (LegacyKind, bool)
	RadioTechnology() RadioTechnology
	RegisterChangeReceiver(changed func()) (stream.Handle, error)
}

// Source is the connectivity stream source and query. It prefers the
// per-network platform and falls back to the legacy one.
type Source struct {
	modern Platform
	legacy LegacyPlatform
	log    *slog.Logger
}

// NewSource creates a connectivity source. Either platform may be nil.
func NewSource(modern Platform, legacy LegacyPlatform, logger *slog.Logger) *Source {
	return &Source{modern: modern, legacy: legacy, log: logger}
}

// Negotiate reports the capability of the best available platform.
func (s *Source) Negotiate() stream.Capability {
	_, _, capab := s.pick()
	return capab
}

func (s *Source) pick() (Platform, LegacyPlatform, stream.Capability) {
	best := stream.Unsupported
	if s.modern != nil {
		switch s.modern.Negotiate() {
		case stream.Supported:
			return s.modern, nil, stream.Supported
		case stream.Denied:
			best = stream.Denied
		}
	}
	if s.legacy != nil {
		switch s.legacy.Negotiate() {
		case stream.Supported:
			return nil, s.legacy, stream.Supported
		case stream.Denied:
			best = stream.Denied
		}
	}
	return nil, nil, best
}

// Current returns a snapshot of the active network. Without a usable
// platform the type is Unknown.
func (s *Source) Current() telemetry.Connectivity {
	modern, legacy, _ := s.pick()
	switch {
	case modern != nil:
		return s.modernCurrent(modern)
	case legacy != nil:
		return s.legacyCurrent(legacy)
	default:
		return telemetry.Connectivity{Type: telemetry.ConnectivityUnknown}
	}
}

// Register installs the platform observer and emits the current snapshot once.
func (s *Source) Register(emit func(telemetry.Connectivity)) (stream.Handle, error) {
	modern, legacy, _ := s.pick()
	switch {
	case modern != nil:
		return s.registerModern(modern, emit)
	case legacy != nil:
		return s.registerLegacy(legacy, emit)
	default:
		return nil, stream.ErrNotSupported
	}
}

func (s *Source) registerModern(p Platform, emit func(telemetry.Connectivity)) (stream.Handle, error) {
	h, err := p.RegisterDefaultNetworkCallback(Callbacks{
		Available: func(n Network) {
			s.log.Debug("default network available", "network", n)
			emit(snapshot(p.Capabilities(n), p.RadioTechnology))
		},
		CapabilitiesChanged: func(n Network, caps *Capabilities) {
			s.log.Debug("default network capabilities changed", "network", n)
			emit(snapshot(caps, p.RadioTechnology))
		},
		Lost: func(n Network) {
			s.log.Debug("default network lost", "network", n)
			emit(snapshot(p.Capabilities(n), p.RadioTechnology))
		},
	})
	if err != nil {
		return nil, err
	}
	emit(s.modernCurrent(p))
	return h, nil
}

func (s *Source) registerLegacy(p LegacyPlatform, emit func(telemetry.Connectivity)) (stream.Handle, error) {
	h, err := p.RegisterChangeReceiver(func() {
		s.log.Debug("connectivity changed")
		emit(s.legacyCurrent(p))
	})
	if err != nil {
		return nil, err
	}
	emit(s.legacyCurrent(p))
	return h, nil
}

func (s *Source) modernCurrent(p Platform) telemetry.Connectivity {
	n, ok := p.DefaultNetwork()
	if !ok {
		return telemetry.Connectivity{Type: telemetry.ConnectivityNone}
	}
	return snapshot(p.Capabilities(n), p.RadioTechnology)
}

func (s *Source) legacyCurrent(p LegacyPlatform) telemetry.Connectivity {
	kind, ok := p.ActiveNetwork()
	if !ok {
		return telemetry.Connectivity{Type: telemetry.ConnectivityNone}
	}
	radio := RadioUnknown
	if kind == LegacyMobile || kind == LegacyMobileDUN || kind == LegacyMobileHIPRI {
		radio = p.RadioTechnology()
	}
	return telemetry.Connectivity{Type: ClassifyLegacy(kind, radio)}
}

// snapshot only asks for the radio technology when the network is cellular.
func snapshot(caps *Capabilities, radio func() RadioTechnology) telemetry.Connectivity {
	r := RadioUnknown
	if Classify(caps, RadioUnknown) == telemetry.ConnectivityUnknown {
		r = radio()
	}
	return Snapshot(caps, r)
}
