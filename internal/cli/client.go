package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/dbus"
	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
)

// daemonClient is the part of dbus.Client the commands use.
type daemonClient interface {
	Call(ctx context.Context, method string) (any, error)
	History(ctx context.Context, channel string, from, to int64) ([]storage.Event, error)
	Latest(ctx context.Context, channel string) (*storage.Event, error)
	Subscriptions(ctx context.Context) (map[string]string, error)
	SubscriptionHistory(ctx context.Context, from, to int64) ([]storage.Subscription, error)
	ScoreBreakdown(ctx context.Context) (map[string]bool, error)
	Watch(ctx context.Context, channel string, timeout time.Duration, fn func(payload any)) error
}

// dial connects to the daemon. Tests replace it.
var dial = func(bus string) (daemonClient, func(), error) {
	conn, err := dbus.Connect(bus)
	if err != nil {
		return nil, nil, err
	}
	return dbus.NewClient(conn), func() { _ = conn.Close() }, nil
}

// resolveChannel accepts a full channel name or its short form without the
// "eco.monitor/" prefix, e.g. "battery.level".
func resolveChannel(name string) (string, error) {
	full := name
	if !strings.Contains(name, "/") {
		full = "eco.monitor/" + name
	}
	for _, c := range bridge.Channels {
		if c == full {
			return full, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q (want one of %s)", name, strings.Join(bridge.Channels, ", "))
}
