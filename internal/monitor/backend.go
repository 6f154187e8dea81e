package monitor

import (
	"fmt"
	"log/slog"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Backend is one native provider of a telemetry value. It negotiates its
// capability, reads the current value and reports changes.
type Backend[T any] interface {
	Name() string
	Negotiate() stream.Capability
	Read() (T, error)
	Watch(changed func()) (stream.Handle, error)
}

// Reader reads a value from the first supported backend.
type Reader[T any] struct {
	backends []Backend[T]
}

// NewReader creates a reader over backends in preference order.
func NewReader[T any](backends ...Backend[T]) *Reader[T] {
	return &Reader[T]{backends: backends}
}

func (r *Reader[T]) pick() (Backend[T], stream.Capability) {
	best := stream.Unsupported
	for _, b := range r.backends {
		switch b.Negotiate() {
		case stream.Supported:
			return b, stream.Supported
		case stream.Denied:
			best = stream.Denied
		}
	}
	return nil, best
}

// Negotiate reports the capability of the best backend.
func (r *Reader[T]) Negotiate() stream.Capability {
	_, capab := r.pick()
	return capab
}

// Read returns the current value. With no usable backend the error wraps
// ErrUnsupported or ErrDenied.
func (r *Reader[T]) Read() (T, error) {
	var zero T
	b, capab := r.pick()
	switch capab {
	case stream.Supported:
		v, err := b.Read()
		if err != nil {
			return zero, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return v, nil
	case stream.Denied:
		return zero, telemetry.ErrDenied
	default:
		return zero, telemetry.ErrUnsupported
	}
}

// watchSource adapts a Reader into a stream source: every change
// notification re-reads the backend and emits the projected value.
type watchSource[T, V any] struct {
	reader  *Reader[T]
	project func(T) V
	initial bool
	log     *slog.Logger
}

func (s *watchSource[T, V]) Negotiate() stream.Capability {
	return s.reader.Negotiate()
}

func (s *watchSource[T, V]) Register(emit func(V)) (stream.Handle, error) {
	b, capab := s.reader.pick()
	if capab != stream.Supported {
		return nil, stream.ErrNotSupported
	}

	send := func() {
		v, err := b.Read()
		if err != nil {
			// A failed read produces no event for this change.
			s.log.Debug("read after change failed", "backend", b.Name(), "err", err)
			return
		}
		emit(s.project(v))
	}

	h, err := b.Watch(send)
	if err != nil {
		return nil, err
	}
	s.log.Debug("observer registered", "backend", b.Name())
	if s.initial {
		send()
	}
	return h, nil
}

// BatteryReading is the battery level and state from one backend.
type BatteryReading struct {
	Level float64
	State telemetry.BatteryState
}

// BatteryReader reads the battery from UPower or sysfs.
type BatteryReader = Reader[BatteryReading]

// LowPowerReader reads whether a power saving profile is active.
type LowPowerReader = Reader[bool]

// NewBatteryStateSource streams battery state changes. Like a sticky
// broadcast, the current state is emitted on register.
func NewBatteryStateSource(r *BatteryReader, logger *slog.Logger) stream.Source[telemetry.BatteryState] {
	return &watchSource[BatteryReading, telemetry.BatteryState]{
		reader:  r,
		project: func(b BatteryReading) telemetry.BatteryState { return b.State },
		initial: true,
		log:     logger,
	}
}

// NewBatteryLevelSource streams the battery percentage. The current level
// is emitted on register.
func NewBatteryLevelSource(r *BatteryReader, logger *slog.Logger) stream.Source[float64] {
	return &watchSource[BatteryReading, float64]{
		reader:  r,
		project: func(b BatteryReading) float64 { return b.Level },
		initial: true,
		log:     logger,
	}
}

// NewLowPowerSource streams low-power mode changes. Nothing is emitted
// until the mode actually changes.
func NewLowPowerSource(r *LowPowerReader, logger *slog.Logger) stream.Source[bool] {
	return &watchSource[bool, bool]{
		reader:  r,
		project: func(b bool) bool { return b },
		log:     logger,
	}
}
