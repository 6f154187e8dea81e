package monitor

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

func TestHandleSleepSignal(t *testing.T) {
	var got []string
	hooks := SleepHooks{
		Suspending:   func() { got = append(got, "suspend") },
		Resumed:      func() { got = append(got, "resume") },
		ShuttingDown: func() { got = append(got, "shutdown") },
	}

	signals := []*dbus.Signal{
		{Name: prepareForSleep, Body: []any{true}},
		{Name: prepareForSleep, Body: []any{false}},
		{Name: prepareForShutdown, Body: []any{false}},
		{Name: prepareForShutdown, Body: []any{true}},
		{Name: prepareForSleep, Body: []any{"yes"}},
		{Name: prepareForSleep},
		{Name: login1ManagerIface + ".SessionNew", Body: []any{true}},
	}
	for _, sig := range signals {
		handleSleepSignal(sig, hooks, testLogger())
	}

	want := []string{"suspend", "resume", "shutdown"}
	if len(got) != len(want) {
		t.Fatalf("hooks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hooks = %v, want %v", got, want)
		}
	}
}

func TestHandleSleepSignal_NilHooks(t *testing.T) {
	handleSleepSignal(&dbus.Signal{Name: prepareForSleep, Body: []any{true}}, SleepHooks{}, testLogger())
}

func TestWatchSleep_NoBus(t *testing.T) {
	h, err := WatchSleep(nil, SleepHooks{}, testLogger())
	if !errors.Is(err, telemetry.ErrUnsupported) || h != nil {
		t.Fatalf("WatchSleep(nil) = %v, %v, want ErrUnsupported", h, err)
	}
}
