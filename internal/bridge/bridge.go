package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cptspacemanspiff/eco-monitor/internal/metrics"
	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Event channel names.
const (
	ChannelLowPower     = "eco.monitor/battery.isLowPowerMode"
	ChannelBatteryState = "eco.monitor/battery.state"
	ChannelBatteryLevel = "eco.monitor/battery.level"
	ChannelConnectivity = "eco.monitor/connectivity.state"
)

// Channels lists every event channel.
var Channels = []string{ChannelLowPower, ChannelBatteryState, ChannelBatteryLevel, ChannelConnectivity}

// ErrUnknownChannel is returned by Listen and Cancel for an unregistered
// channel name.
var ErrUnknownChannel = errors.New("unknown event channel")

// Journal persists delivered events and subscription lifetimes.
type Journal interface {
	InsertEvent(e storage.Event) (int64, error)
	InsertSubscription(s storage.Subscription) error
	EndSubscription(id string, end int64) error
	EventsInRange(channel string, from, to int64) ([]storage.Event, error)
	LatestEvent(channel string) (*storage.Event, error)
	SubscriptionsInRange(from, to int64) ([]storage.Subscription, error)
}

// Event is one value pushed on a channel. Value is a bool, a float64 or a
// string; connectivity values are serialized JSON records.
type Event struct {
	Channel        string    `json:"channel"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Time           time.Time `json:"time"`
	Value          any       `json:"value"`
}

// Subscription is the result of Listen. Done closes when the subscription
// ends: cancelled, replaced by a newer Listen, or never started because the
// source is not supported.
type Subscription struct {
	ID         uuid.UUID
	Channel    string
	Capability stream.Capability
	Done       <-chan struct{}
}

type activeSub struct {
	id   uuid.UUID
	done chan struct{}
}

type channel struct {
	listener Listener

	mu      sync.Mutex
	current *activeSub
}

// Bridge is the request/response and event surface shared by the D-Bus and
// HTTP transports.
type Bridge struct {
	dev      Device
	handlers map[string]func() (any, error)
	channels map[string]*channel
	journal  Journal
	log      *slog.Logger
}

// New builds a bridge over dev. journal may be nil to disable event
// persistence.
func New(dev Device, listeners []Listener, journal Journal, logger *slog.Logger) *Bridge {
	b := &Bridge{
		dev:      dev,
		handlers: handlers(dev),
		channels: make(map[string]*channel, len(listeners)),
		journal:  journal,
		log:      logger,
	}
	for _, l := range listeners {
		b.channels[l.Channel()] = &channel{listener: l}
	}
	return b
}

// Call runs the named query. A failed or panicking handler comes back as a
// *telemetry.ErrorRecord; an unknown method has code NotImplemented.
func (b *Bridge) Call(method string) (result any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("query panicked", "method", method, "panic", r)
			result = nil
			err = &telemetry.ErrorRecord{
				Code:    telemetry.CodeInternal,
				Message: method + " failed",
				Details: fmt.Sprint(r),
			}
		}
		outcome := "ok"
		var rec *telemetry.ErrorRecord
		if errors.As(err, &rec) {
			outcome = rec.Code
		}
		metrics.BridgeCalls.WithLabelValues(method, outcome).Inc()
		metrics.BridgeCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	h, ok := b.handlers[method]
	if !ok {
		return nil, &telemetry.ErrorRecord{
			Code:    telemetry.CodeNotImplemented,
			Message: fmt.Sprintf("method %q not implemented", method),
		}
	}
	v, err := h()
	if err != nil {
		b.log.Debug("query failed", "method", method, "err", err)
		return nil, telemetry.NewErrorRecord(fmt.Errorf("%s: %w", method, err))
	}
	return v, nil
}

// Listen subscribes sink to channel, replacing any current subscription on
// it. When the source is unsupported or denied the returned subscription is
// already done and sink is never called.
func (b *Bridge) Listen(name string, sink func(Event)) (*Subscription, error) {
	ch, ok := b.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	b.endLocked(name, ch)

	id := uuid.New()
	done := make(chan struct{})
	capab, err := ch.listener.Subscribe(func(v any) {
		b.deliver(name, id, v, sink)
	})
	b.recordSubscription(name, id, capab)
	if err != nil {
		close(done)
		b.endRecord(id)
		return nil, err
	}
	if capab != stream.Supported {
		close(done)
		b.endRecord(id)
		return &Subscription{ID: id, Channel: name, Capability: capab, Done: done}, nil
	}

	ch.current = &activeSub{id: id, done: done}
	b.log.Info("listen", "channel", name, "id", id)
	return &Subscription{ID: id, Channel: name, Capability: capab, Done: done}, nil
}

// Cancel ends the subscription id on channel. Cancelling a subscription
// that is no longer current is a no-op and reports false.
func (b *Bridge) Cancel(name string, id uuid.UUID) (bool, error) {
	ch, ok := b.channels[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.current == nil || ch.current.id != id {
		return false, nil
	}
	b.endLocked(name, ch)
	return true, nil
}

// Active returns the current subscription id per channel.
func (b *Bridge) Active() map[string]uuid.UUID {
	out := make(map[string]uuid.UUID)
	for name, ch := range b.channels {
		ch.mu.Lock()
		if ch.current != nil {
			out[name] = ch.current.id
		}
		ch.mu.Unlock()
	}
	return out
}

// Close cancels every subscription.
func (b *Bridge) Close() {
	for name, ch := range b.channels {
		ch.mu.Lock()
		b.endLocked(name, ch)
		ch.mu.Unlock()
	}
}

// History returns journaled events on channel between the unix millisecond
// bounds.
func (b *Bridge) History(name string, from, to int64) ([]storage.Event, error) {
	if err := b.journalFor(name); err != nil {
		return nil, err
	}
	events, err := b.journal.EventsInRange(name, from, to)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return events, nil
}

// Latest returns the newest journaled event on channel, or nil when there is
// none.
func (b *Bridge) Latest(name string) (*storage.Event, error) {
	if err := b.journalFor(name); err != nil {
		return nil, err
	}
	e, err := b.journal.LatestEvent(name)
	if err != nil {
		return nil, fmt.Errorf("read latest event: %w", err)
	}
	return e, nil
}

// SubscriptionHistory returns journaled subscriptions that were live at any
// point between the unix millisecond bounds.
func (b *Bridge) SubscriptionHistory(from, to int64) ([]storage.Subscription, error) {
	if err := b.journalFor(""); err != nil {
		return nil, err
	}
	subs, err := b.journal.SubscriptionsInRange(from, to)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return subs, nil
}

// ScoreBreakdown reports each scoring predicate by name. Failures come back
// as a *telemetry.ErrorRecord like Call.
func (b *Bridge) ScoreBreakdown() (map[string]bool, error) {
	preds, err := b.dev.ScoreBreakdown()
	if err != nil {
		return nil, telemetry.NewErrorRecord(fmt.Errorf("score breakdown: %w", err))
	}
	return preds, nil
}

// journalFor checks that name is a channel, unless empty, and that the
// journal is enabled.
func (b *Bridge) journalFor(name string) error {
	if name != "" {
		if _, ok := b.channels[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
		}
	}
	if b.journal == nil {
		return &telemetry.ErrorRecord{
			Code:    telemetry.CodeUnsupported,
			Message: "event journal disabled",
		}
	}
	return nil
}

// Methods lists the query names Call accepts, sorted.
func (b *Bridge) Methods() []string {
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Bridge) endLocked(name string, ch *channel) {
	if ch.current == nil {
		return
	}
	ch.listener.Unsubscribe()
	close(ch.current.done)
	b.endRecord(ch.current.id)
	b.log.Info("subscription ended", "channel", name, "id", ch.current.id)
	ch.current = nil
}

func (b *Bridge) deliver(name string, id uuid.UUID, v any, sink func(Event)) {
	ev := Event{Channel: name, SubscriptionID: id, Time: time.Now(), Value: v}
	if b.journal != nil {
		payload, err := payloadJSON(name, v)
		if err == nil {
			_, err = b.journal.InsertEvent(storage.Event{
				SubscriptionID: id.String(),
				Channel:        name,
				Timestamp:      ev.Time.UnixMilli(),
				Payload:        payload,
			})
		}
		if err != nil {
			metrics.JournalErrors.Inc()
			b.log.Error("journal event", "channel", name, "err", err)
		} else {
			metrics.JournalWrites.Inc()
		}
	}
	sink(ev)
}

func (b *Bridge) recordSubscription(name string, id uuid.UUID, capab stream.Capability) {
	if b.journal == nil {
		return
	}
	err := b.journal.InsertSubscription(storage.Subscription{
		ID:         id.String(),
		Channel:    name,
		Capability: capab.String(),
		StartTime:  time.Now().UnixMilli(),
	})
	if err != nil {
		b.log.Error("journal subscription", "channel", name, "err", err)
	}
}

func (b *Bridge) endRecord(id uuid.UUID) {
	if b.journal == nil {
		return
	}
	if err := b.journal.EndSubscription(id.String(), time.Now().UnixMilli()); err != nil {
		b.log.Error("journal subscription end", "id", id, "err", err)
	}
}
