package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// watchBuffer is the signal queue for one Watch. godbus hands signals that
// find it full to a goroutine each, which loses their order.
const watchBuffer = 64

// signalConn is the part of *godbus.Conn Watch needs.
type signalConn interface {
	AddMatchSignal(options ...godbus.MatchOption) error
	RemoveMatchSignal(options ...godbus.MatchOption) error
	Signal(ch chan<- *godbus.Signal)
	RemoveSignal(ch chan<- *godbus.Signal)
}

// Client talks to a running daemon.
type Client struct {
	conn signalConn
	obj  godbus.BusObject
}

func NewClient(conn *godbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(BusName, ObjPath)}
}

// Call runs a query by name. Enum and connectivity results come back as
// their telemetry types.
func (c *Client) Call(ctx context.Context, method string) (any, error) {
	var v godbus.Variant
	if err := c.obj.CallWithContext(ctx, IfaceName+".Call", 0, method).Store(&v); err != nil {
		return nil, fromDBusError(err)
	}
	return decodeValue(method, v.Value())
}

// History fetches journaled events in the unix millisecond range.
func (c *Client) History(ctx context.Context, channel string, from, to int64) ([]storage.Event, error) {
	var events []storage.Event
	if err := c.callJSON(ctx, "GetEventHistory", &events, channel, from, to); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return events, nil
}

// Latest fetches the newest journaled event on channel, nil if there is none.
func (c *Client) Latest(ctx context.Context, channel string) (*storage.Event, error) {
	var e *storage.Event
	if err := c.callJSON(ctx, "GetLatestEvent", &e, channel); err != nil {
		return nil, fmt.Errorf("latest event: %w", err)
	}
	return e, nil
}

// SubscriptionHistory fetches journaled subscriptions live in the range.
func (c *Client) SubscriptionHistory(ctx context.Context, from, to int64) ([]storage.Subscription, error) {
	var subs []storage.Subscription
	if err := c.callJSON(ctx, "GetSubscriptionHistory", &subs, from, to); err != nil {
		return nil, fmt.Errorf("subscription history: %w", err)
	}
	return subs, nil
}

// Subscriptions returns the active subscription id per channel.
func (c *Client) Subscriptions(ctx context.Context) (map[string]string, error) {
	var subs map[string]string
	if err := c.obj.CallWithContext(ctx, IfaceName+".GetSubscriptions", 0).Store(&subs); err != nil {
		return nil, fromDBusError(err)
	}
	return subs, nil
}

// ScoreBreakdown returns each scoring predicate by name.
func (c *Client) ScoreBreakdown(ctx context.Context) (map[string]bool, error) {
	var preds map[string]bool
	if err := c.obj.CallWithContext(ctx, IfaceName+".GetScoreBreakdown", 0).Store(&preds); err != nil {
		return nil, fromDBusError(err)
	}
	return preds, nil
}

func (c *Client) callJSON(ctx context.Context, method string, out any, args ...any) error {
	var data string
	if err := c.obj.CallWithContext(ctx, IfaceName+"."+method, 0, args...).Store(&data); err != nil {
		return fromDBusError(err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

// Watch subscribes to channel and calls fn for every event until ctx is done
// or the subscription ends. Setting up and cancelling the subscription are
// each bounded by timeout. A subscription the daemon cannot serve returns an
// error naming the capability.
func (c *Client) Watch(ctx context.Context, channel string, timeout time.Duration, fn func(payload any)) error {
	opts := [][]godbus.MatchOption{
		{godbus.WithMatchObjectPath(ObjPath), godbus.WithMatchInterface(IfaceName), godbus.WithMatchMember("Event")},
		{godbus.WithMatchObjectPath(ObjPath), godbus.WithMatchInterface(IfaceName), godbus.WithMatchMember("SubscriptionEnded")},
	}
	for _, o := range opts {
		if err := c.conn.AddMatchSignal(o...); err != nil {
			return fmt.Errorf("add match: %w", err)
		}
		defer c.conn.RemoveMatchSignal(o...)
	}

	signals := make(chan *godbus.Signal, watchBuffer)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	listenCtx, cancel := context.WithTimeout(ctx, timeout)
	var id, capability string
	err := c.obj.CallWithContext(listenCtx, IfaceName+".Listen", 0, channel).Store(&id, &capability)
	cancel()
	if err != nil {
		return fmt.Errorf("listen %s: %w", channel, fromDBusError(err))
	}
	if capability != "supported" {
		return fmt.Errorf("channel %s is %s on this system", channel, capability)
	}

	for {
		select {
		case <-ctx.Done():
			// ctx is already done, so the cancel call gets its own deadline.
			cancelCtx, cancel := context.WithTimeout(context.Background(), timeout)
			var cancelled bool
			err := c.obj.CallWithContext(cancelCtx, IfaceName+".Cancel", 0, channel, id).Store(&cancelled)
			cancel()
			if err != nil {
				return fmt.Errorf("cancel subscription %s: %w", id, fromDBusError(err))
			}
			return ctx.Err()
		case sig := <-signals:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			sigChannel, _ := sig.Body[0].(string)
			sigID, _ := sig.Body[1].(string)
			if sigChannel != channel || sigID != id {
				continue
			}
			switch sig.Name {
			case SignalEvent:
				if len(sig.Body) != 3 {
					continue
				}
				v, ok := sig.Body[2].(godbus.Variant)
				if !ok {
					continue
				}
				payload, err := decodeValue(channelMethods[channel], v.Value())
				if err != nil {
					return fmt.Errorf("event on %s: %w", channel, err)
				}
				fn(payload)
			case SignalEnded:
				return nil
			}
		}
	}
}

// channelMethods maps the channels whose payloads share a query's wire form.
var channelMethods = map[string]string{
	bridge.ChannelBatteryState: bridge.MethodBatteryState,
	bridge.ChannelConnectivity: bridge.MethodConnectivity,
}

// decodeValue reverses WireValue for method's result.
func decodeValue(method string, v any) (any, error) {
	switch method {
	case bridge.MethodBatteryState:
		var s telemetry.BatteryState
		if err := unmarshalText(&s, v); err != nil {
			return nil, err
		}
		return s, nil
	case bridge.MethodThermalState:
		var s telemetry.ThermalState
		if err := unmarshalText(&s, v); err != nil {
			return nil, err
		}
		return s, nil
	case bridge.MethodConnectivity:
		text, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("connectivity is %T, want JSON string", v)
		}
		var c telemetry.Connectivity
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("decode connectivity: %w", err)
		}
		return c, nil
	case bridge.MethodProcessorCount:
		if n, ok := v.(int32); ok {
			return int(n), nil
		}
	}
	return v, nil
}

func unmarshalText(dst interface{ UnmarshalText([]byte) error }, v any) error {
	text, ok := v.(string)
	if !ok {
		return fmt.Errorf("state is %T, want string", v)
	}
	return dst.UnmarshalText([]byte(text))
}

// fromDBusError turns an org.ecomonitor.EcoMode.Error.* reply back into an
// ErrorRecord.
func fromDBusError(err error) error {
	var derr godbus.Error
	if !errors.As(err, &derr) {
		var p *godbus.Error
		if !errors.As(err, &p) {
			return err
		}
		derr = *p
	}
	code, ok := strings.CutPrefix(derr.Name, ErrorPrefix)
	if !ok {
		return err
	}
	rec := &telemetry.ErrorRecord{Code: code}
	if len(derr.Body) > 0 {
		rec.Message, _ = derr.Body[0].(string)
	}
	if len(derr.Body) > 1 {
		rec.Details, _ = derr.Body[1].(string)
	}
	return rec
}
