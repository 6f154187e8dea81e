package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cptspacemanspiff/eco-monitor/internal/metrics"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Manager owns the native observer for one event channel and forwards its
// values to at most one sink. A newer Subscribe replaces the older one.
type Manager[T any] struct {
	channel string
	source  Source[T]
	loop    *Loop
	log     *slog.Logger

	mu     sync.Mutex
	gen    uint64
	sink   func(T)
	handle Handle
}

// NewManager creates an inactive manager for channel.
func NewManager[T any](channel string, source Source[T], loop *Loop, logger *slog.Logger) *Manager[T] {
	return &Manager[T]{
		channel: channel,
		source:  source,
		loop:    loop,
		log:     logger,
	}
}

// Channel returns the channel name this manager serves.
func (m *Manager[T]) Channel() string {
	return m.channel
}

// Subscribe releases any current subscription, negotiates the source and,
// when supported, stores sink and registers the native observer. On
// Unsupported or Denied the manager stays inactive and sink is never called.
func (m *Manager[T]) Subscribe(sink func(T)) (Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	capab := m.source.Negotiate()
	if capab != Supported {
		m.log.Info("stream source not available", "channel", m.channel, "capability", capab)
		return capab, nil
	}

	m.gen++
	gen := m.gen
	m.sink = sink
	handle, err := m.source.Register(func(v T) {
		m.loop.Post(func() { m.deliver(gen, v) })
	})
	if err != nil {
		m.sink = nil
		m.gen++
		if errors.Is(err, telemetry.ErrDenied) {
			m.log.Warn("stream registration denied", "channel", m.channel, "err", err)
			return Denied, nil
		}
		if errors.Is(err, ErrNotSupported) || errors.Is(err, telemetry.ErrUnsupported) {
			return Unsupported, nil
		}
		return Unsupported, fmt.Errorf("register %s observer: %w", m.channel, err)
	}

	m.handle = handle
	metrics.SubscriptionsActive.WithLabelValues(m.channel).Set(1)
	m.log.Debug("stream subscribed", "channel", m.channel)
	return Supported, nil
}

// Unsubscribe deregisters the native observer and drops the sink. It waits
// for a delivery in progress to finish. Safe to call when inactive.
func (m *Manager[T]) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Active reports whether a sink is currently held.
func (m *Manager[T]) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink != nil
}

func (m *Manager[T]) releaseLocked() {
	// Callbacks already queued on the loop carry the old generation and drop.
	m.gen++
	m.sink = nil
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			m.log.Warn("stream observer release failed", "channel", m.channel, "err", err)
		}
		m.handle = nil
		metrics.SubscriptionsActive.WithLabelValues(m.channel).Set(0)
		m.log.Debug("stream unsubscribed", "channel", m.channel)
	}
}

// deliver runs sink under the manager lock, so once Unsubscribe returns the
// released sink is never called again. Sinks must not call back into m.
func (m *Manager[T]) deliver(gen uint64, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink == nil || m.gen != gen {
		metrics.EventsDropped.WithLabelValues(m.channel).Inc()
		return
	}
	m.sink(v)
	metrics.EventsDelivered.WithLabelValues(m.channel).Inc()
}
