package dbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/google/uuid"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	BusName   = "org.ecomonitor.EcoMode"
	ObjPath   = godbus.ObjectPath("/org/ecomonitor/EcoMode")
	IfaceName = "org.ecomonitor.EcoMode"

	// ErrorPrefix is prepended to an ErrorRecord code to form the D-Bus
	// error name.
	ErrorPrefix = IfaceName + ".Error."

	SignalEvent = IfaceName + ".Event"
	SignalEnded = IfaceName + ".SubscriptionEnded"

	busDaemon        = "org.freedesktop.DBus"
	nameOwnerChanged = busDaemon + ".NameOwnerChanged"
)

// maxHistoryRangeMillis bounds GetEventHistory queries to one year.
const maxHistoryRangeMillis = 366 * 24 * 60 * 60 * 1000

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="Call">
      <arg direction="in" type="s" name="method"/>
      <arg direction="out" type="v" name="result"/>
    </method>
    <method name="GetPlatformInfo">
      <arg direction="out" type="s" name="info"/>
    </method>
    <method name="GetBatteryLevel">
      <arg direction="out" type="d" name="percent"/>
    </method>
    <method name="GetBatteryState">
      <arg direction="out" type="s" name="state"/>
    </method>
    <method name="IsBatteryInLowPowerMode">
      <arg direction="out" type="b" name="enabled"/>
    </method>
    <method name="GetThermalState">
      <arg direction="out" type="s" name="state"/>
    </method>
    <method name="GetProcessorCount">
      <arg direction="out" type="i" name="count"/>
    </method>
    <method name="GetTotalMemory">
      <arg direction="out" type="x" name="bytes"/>
    </method>
    <method name="GetFreeMemory">
      <arg direction="out" type="x" name="bytes"/>
    </method>
    <method name="GetTotalStorage">
      <arg direction="out" type="x" name="bytes"/>
    </method>
    <method name="GetFreeStorage">
      <arg direction="out" type="x" name="bytes"/>
    </method>
    <method name="GetEcoScore">
      <arg direction="out" type="d" name="score"/>
    </method>
    <method name="IsLowEndDevice">
      <arg direction="out" type="b" name="low_end"/>
    </method>
    <method name="GetConnectivity">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Listen">
      <arg direction="in" type="s" name="channel"/>
      <arg direction="out" type="s" name="id"/>
      <arg direction="out" type="s" name="capability"/>
    </method>
    <method name="Cancel">
      <arg direction="in" type="s" name="channel"/>
      <arg direction="in" type="s" name="id"/>
      <arg direction="out" type="b" name="cancelled"/>
    </method>
    <method name="GetSubscriptions">
      <arg direction="out" type="a{ss}" name="subscriptions"/>
    </method>
    <method name="GetEventHistory">
      <arg direction="in" type="s" name="channel"/>
      <arg direction="in" type="x" name="from_millis"/>
      <arg direction="in" type="x" name="to_millis"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetLatestEvent">
      <arg direction="in" type="s" name="channel"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSubscriptionHistory">
      <arg direction="in" type="x" name="from_millis"/>
      <arg direction="in" type="x" name="to_millis"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetScoreBreakdown">
      <arg direction="out" type="a{sb}" name="predicates"/>
    </method>
    <signal name="Event">
      <arg type="s" name="channel"/>
      <arg type="s" name="id"/>
      <arg type="v" name="payload"/>
    </signal>
    <signal name="SubscriptionEnded">
      <arg type="s" name="channel"/>
      <arg type="s" name="id"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Emitter sends signals. *godbus.Conn implements it.
type Emitter interface {
	Emit(path godbus.ObjectPath, name string, values ...interface{}) error
}

// Matcher adds and removes bus match rules. *godbus.Conn implements it.
type Matcher interface {
	AddMatchSignal(options ...godbus.MatchOption) error
	RemoveMatchSignal(options ...godbus.MatchOption) error
}

// Service exposes the bridge over D-Bus.
type Service struct {
	bridge *bridge.Bridge
	emit   Emitter
	log    *slog.Logger

	mu      sync.Mutex
	matcher Matcher
	// clients maps a caller's unique bus name to its live subscriptions.
	clients map[string]map[uuid.UUID]string
}

// NewService creates a new D-Bus service. Event signals go out through emit.
func NewService(b *bridge.Bridge, emit Emitter, logger *slog.Logger) *Service {
	return &Service{
		bridge:  b,
		emit:    emit,
		log:     logger,
		clients: make(map[string]map[uuid.UUID]string),
	}
}

// Connect opens a private connection to the "system" or "session" bus.
func Connect(bus string) (*godbus.Conn, error) {
	var (
		conn *godbus.Conn
		err  error
	)
	switch bus {
	case "system":
		conn, err = godbus.ConnectSystemBus()
	case "session":
		conn, err = godbus.ConnectSessionBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s bus: %w", bus, err)
	}
	return conn, nil
}

// Export registers the service on conn and claims the bus name. Callers that
// leave the bus lose their subscriptions.
func (s *Service) Export(conn *godbus.Conn) error {
	s.WatchClients(conn)
	signals := make(chan *godbus.Signal, 64)
	conn.Signal(signals)
	go func() {
		for sig := range signals {
			s.handleBusSignal(sig)
		}
	}()

	if err := conn.Export(s, ObjPath, IfaceName); err != nil {
		return fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", BusName)
	}
	return nil
}

// Call runs any bridge query by name and returns its wire value.
func (s *Service) Call(method string) (godbus.Variant, *godbus.Error) {
	v, err := s.bridge.Call(method)
	if err != nil {
		return godbus.Variant{}, toDBusError(err)
	}
	return godbus.MakeVariant(WireValue(v)), nil
}

func (s *Service) GetPlatformInfo() (string, *godbus.Error) {
	return query[string](s, bridge.MethodPlatformInfo)
}

func (s *Service) GetBatteryLevel() (float64, *godbus.Error) {
	return query[float64](s, bridge.MethodBatteryLevel)
}

func (s *Service) GetBatteryState() (string, *godbus.Error) {
	state, derr := query[telemetry.BatteryState](s, bridge.MethodBatteryState)
	return state.String(), derr
}

func (s *Service) IsBatteryInLowPowerMode() (bool, *godbus.Error) {
	return query[bool](s, bridge.MethodLowPowerMode)
}

func (s *Service) GetThermalState() (string, *godbus.Error) {
	state, derr := query[telemetry.ThermalState](s, bridge.MethodThermalState)
	return state.String(), derr
}

func (s *Service) GetProcessorCount() (int32, *godbus.Error) {
	n, derr := query[int](s, bridge.MethodProcessorCount)
	return int32(n), derr
}

func (s *Service) GetTotalMemory() (int64, *godbus.Error) {
	return query[int64](s, bridge.MethodTotalMemory)
}

func (s *Service) GetFreeMemory() (int64, *godbus.Error) {
	return query[int64](s, bridge.MethodFreeMemory)
}

func (s *Service) GetTotalStorage() (int64, *godbus.Error) {
	return query[int64](s, bridge.MethodTotalStorage)
}

func (s *Service) GetFreeStorage() (int64, *godbus.Error) {
	return query[int64](s, bridge.MethodFreeStorage)
}

func (s *Service) GetEcoScore() (float64, *godbus.Error) {
	return query[float64](s, bridge.MethodEcoScore)
}

func (s *Service) IsLowEndDevice() (bool, *godbus.Error) {
	return query[bool](s, bridge.MethodIsLowEndDevice)
}

// GetConnectivity returns the serialized {type, wifiSignalStrength} record.
func (s *Service) GetConnectivity() (string, *godbus.Error) {
	c, derr := query[telemetry.Connectivity](s, bridge.MethodConnectivity)
	if derr != nil {
		return "", derr
	}
	return c.JSON(), nil
}

// Listen subscribes to channel on behalf of the caller. Events arrive as
// Event signals carrying the returned id; SubscriptionEnded follows when the
// subscription is cancelled or replaced.
func (s *Service) Listen(sender godbus.Sender, channel string) (string, string, *godbus.Error) {
	sub, err := s.bridge.Listen(channel, func(e bridge.Event) {
		if err := s.emit.Emit(ObjPath, SignalEvent, e.Channel, e.SubscriptionID.String(), godbus.MakeVariant(e.Value)); err != nil {
			s.log.Warn("emit event", "channel", e.Channel, "err", err)
		}
	})
	if err != nil {
		return "", "", toDBusError(err)
	}
	s.log.Info("dbus listen", "channel", channel, "id", sub.ID, "sender", string(sender), "capability", sub.Capability)

	owner := string(sender)
	tracked := sub.Capability == stream.Supported && owner != "" && s.track(owner, channel, sub.ID)
	go func() {
		<-sub.Done
		if tracked {
			s.untrack(owner, sub.ID)
		}
		if err := s.emit.Emit(ObjPath, SignalEnded, channel, sub.ID.String()); err != nil {
			s.log.Warn("emit subscription ended", "channel", channel, "err", err)
		}
	}()
	return sub.ID.String(), sub.Capability.String(), nil
}

// WatchClients makes the service follow NameOwnerChanged through m so that
// subscriptions end when their caller disconnects.
func (s *Service) WatchClients(m Matcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matcher = m
}

func ownerMatch(name string) []godbus.MatchOption {
	return []godbus.MatchOption{
		godbus.WithMatchSender(busDaemon),
		godbus.WithMatchInterface(busDaemon),
		godbus.WithMatchMember("NameOwnerChanged"),
		godbus.WithMatchArg(0, name),
	}
}

// track records id as owned by the unique name owner. It reports false when
// the owner cannot be watched.
func (s *Service) track(owner, channel string, id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matcher == nil {
		return false
	}
	subs, ok := s.clients[owner]
	if !ok {
		if err := s.matcher.AddMatchSignal(ownerMatch(owner)...); err != nil {
			s.log.Warn("watch subscriber", "sender", owner, "err", err)
			return false
		}
		subs = make(map[uuid.UUID]string)
		s.clients[owner] = subs
	}
	subs[id] = channel
	return true
}

func (s *Service) untrack(owner string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.clients[owner]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) > 0 {
		return
	}
	delete(s.clients, owner)
	if err := s.matcher.RemoveMatchSignal(ownerMatch(owner)...); err != nil {
		s.log.Debug("unwatch subscriber", "sender", owner, "err", err)
	}
}

// handleBusSignal cancels the subscriptions of a caller whose unique name
// lost its owner.
func (s *Service) handleBusSignal(sig *godbus.Signal) {
	if sig.Name != nameOwnerChanged || len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name == "" || newOwner != "" {
		return
	}

	s.mu.Lock()
	gone := make(map[uuid.UUID]string, len(s.clients[name]))
	for id, channel := range s.clients[name] {
		gone[id] = channel
	}
	s.mu.Unlock()

	for id, channel := range gone {
		// Cancel is a no-op when a newer Listen already replaced id.
		ok, err := s.bridge.Cancel(channel, id)
		if err != nil {
			s.log.Warn("cancel for departed subscriber", "channel", channel, "id", id, "err", err)
			continue
		}
		if ok {
			s.log.Info("subscriber left the bus", "sender", name, "channel", channel, "id", id)
		}
	}
}

// Cancel ends subscription id if it is still the current one on channel.
func (s *Service) Cancel(channel, id string) (bool, *godbus.Error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, godbus.NewError(ErrorPrefix+"InvalidArgs", []interface{}{fmt.Sprintf("invalid subscription id %q", id), ""})
	}
	ok, err := s.bridge.Cancel(channel, parsed)
	if err != nil {
		return false, toDBusError(err)
	}
	return ok, nil
}

// GetSubscriptions maps each active channel to its subscription id.
func (s *Service) GetSubscriptions() (map[string]string, *godbus.Error) {
	out := make(map[string]string)
	for channel, id := range s.bridge.Active() {
		out[channel] = id.String()
	}
	return out, nil
}

// GetEventHistory returns journaled events on channel as JSON.
func (s *Service) GetEventHistory(channel string, fromMillis, toMillis int64) (string, *godbus.Error) {
	if err := validateRange(fromMillis, toMillis); err != nil {
		return "", godbus.NewError(ErrorPrefix+"InvalidArgs", []interface{}{err.Error(), ""})
	}
	events, err := s.bridge.History(channel, fromMillis, toMillis)
	if err != nil {
		return "", toDBusError(err)
	}
	return marshalJSON(events)
}

// GetLatestEvent returns the newest journaled event on channel as JSON, or
// "null" when the channel has none.
func (s *Service) GetLatestEvent(channel string) (string, *godbus.Error) {
	e, err := s.bridge.Latest(channel)
	if err != nil {
		return "", toDBusError(err)
	}
	return marshalJSON(e)
}

// GetSubscriptionHistory returns journaled subscriptions live in the range.
func (s *Service) GetSubscriptionHistory(fromMillis, toMillis int64) (string, *godbus.Error) {
	if err := validateRange(fromMillis, toMillis); err != nil {
		return "", godbus.NewError(ErrorPrefix+"InvalidArgs", []interface{}{err.Error(), ""})
	}
	subs, err := s.bridge.SubscriptionHistory(fromMillis, toMillis)
	if err != nil {
		return "", toDBusError(err)
	}
	return marshalJSON(subs)
}

func (s *Service) GetScoreBreakdown() (map[string]bool, *godbus.Error) {
	preds, err := s.bridge.ScoreBreakdown()
	if err != nil {
		return nil, toDBusError(err)
	}
	return preds, nil
}

func marshalJSON(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

func validateRange(from, to int64) error {
	if from < 0 {
		return fmt.Errorf("from must not be negative")
	}
	if to < from {
		return fmt.Errorf("to must not be before from")
	}
	if to-from > maxHistoryRangeMillis {
		return fmt.Errorf("range exceeds one year")
	}
	return nil
}

func query[T any](s *Service, method string) (T, *godbus.Error) {
	var zero T
	v, err := s.bridge.Call(method)
	if err != nil {
		return zero, toDBusError(err)
	}
	t, ok := v.(T)
	if !ok {
		return zero, godbus.MakeFailedError(fmt.Errorf("%s returned %T", method, v))
	}
	return t, nil
}

// WireValue converts a bridge result to a D-Bus friendly value: enums become
// their names, connectivity its JSON record and int an int32.
func WireValue(v any) any {
	switch t := v.(type) {
	case telemetry.BatteryState:
		return t.String()
	case telemetry.ThermalState:
		return t.String()
	case telemetry.Connectivity:
		return t.JSON()
	case int:
		return int32(t)
	}
	return v
}

// toDBusError maps a bridge failure to org.ecomonitor.EcoMode.Error.<Code>
// with body [message, details].
func toDBusError(err error) *godbus.Error {
	if errors.Is(err, bridge.ErrUnknownChannel) {
		return godbus.NewError(ErrorPrefix+"UnknownChannel", []interface{}{err.Error(), ""})
	}
	rec := telemetry.NewErrorRecord(err)
	return godbus.NewError(ErrorPrefix+rec.Code, []interface{}{rec.Message, rec.Details})
}
