package monitor

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	login1ManagerIface = "org.freedesktop.login1.Manager"
	prepareForSleep    = login1ManagerIface + ".PrepareForSleep"
	prepareForShutdown = login1ManagerIface + ".PrepareForShutdown"
)

// SleepHooks receives logind power transitions. Any field may be nil.
type SleepHooks struct {
	Suspending   func()
	Resumed      func()
	ShuttingDown func()
}

// WatchSleep follows systemd-logind PrepareForSleep/PrepareForShutdown on
// conn and calls hooks on the watch goroutine.
func WatchSleep(conn *dbus.Conn, hooks SleepHooks, logger *slog.Logger) (stream.Handle, error) {
	if conn == nil {
		return nil, telemetry.ErrUnsupported
	}
	w, err := watchSignals(conn,
		func(sig *dbus.Signal) { handleSleepSignal(sig, hooks, logger) },
		[]dbus.MatchOption{dbus.WithMatchInterface(login1ManagerIface), dbus.WithMatchMember("PrepareForSleep")},
		[]dbus.MatchOption{dbus.WithMatchInterface(login1ManagerIface), dbus.WithMatchMember("PrepareForShutdown")},
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func handleSleepSignal(sig *dbus.Signal, hooks SleepHooks, logger *slog.Logger) {
	if len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case prepareForShutdown:
		if active {
			logger.Info("system preparing for shutdown")
			runHook(hooks.ShuttingDown)
		}
	case prepareForSleep:
		if active {
			logger.Info("system going to sleep")
			runHook(hooks.Suspending)
		} else {
			logger.Info("system woke up")
			runHook(hooks.Resumed)
		}
	}
}

func runHook(fn func()) {
	if fn != nil {
		fn()
	}
}
