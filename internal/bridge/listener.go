package bridge

import (
	"encoding/json"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Listener is a type-erased stream manager.
type Listener interface {
	Channel() string
	Subscribe(sink func(any)) (stream.Capability, error)
	Unsubscribe()
}

type managerListener[T any] struct {
	*stream.Manager[T]
	encode func(T) any
}

func (l managerListener[T]) Subscribe(sink func(any)) (stream.Capability, error) {
	return l.Manager.Subscribe(func(v T) { sink(l.encode(v)) })
}

// LowPowerListener forwards the low-power flag as a bool.
func LowPowerListener(m *stream.Manager[bool]) Listener {
	return managerListener[bool]{m, func(v bool) any { return v }}
}

// BatteryStateListener forwards the state name, e.g. "CHARGING".
func BatteryStateListener(m *stream.Manager[telemetry.BatteryState]) Listener {
	return managerListener[telemetry.BatteryState]{m, func(s telemetry.BatteryState) any { return s.String() }}
}

// BatteryLevelListener forwards the charge percentage.
func BatteryLevelListener(m *stream.Manager[float64]) Listener {
	return managerListener[float64]{m, func(v float64) any { return v }}
}

// ConnectivityListener forwards the serialized {type, wifiSignalStrength}
// record.
func ConnectivityListener(m *stream.Manager[telemetry.Connectivity]) Listener {
	return managerListener[telemetry.Connectivity]{m, func(c telemetry.Connectivity) any { return c.JSON() }}
}

// payloadJSON encodes a delivered value for the journal. Connectivity values
// are already JSON.
func payloadJSON(channel string, v any) (string, error) {
	if s, ok := v.(string); ok && channel == ChannelConnectivity {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
