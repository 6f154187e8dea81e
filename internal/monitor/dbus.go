// Package monitor wires native Linux notification sources (UPower,
// power-profiles-daemon, NetworkManager, ModemManager and polled sysfs/procfs
// files) into stream sources and query readers.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	propertiesIface   = "org.freedesktop.DBus.Properties"
	propertiesChanged = propertiesIface + ".PropertiesChanged"
)

// signalBuffer absorbs bursts such as access point strength churn. When it
// fills, godbus hands each extra signal to its own goroutine and order
// among those is no longer guaranteed.
const signalBuffer = 256

// signalWatch subscribes to a set of D-Bus match rules and feeds every
// matching signal to handle on its own goroutine until closed.
type signalWatch struct {
	conn    *dbus.Conn
	matches [][]dbus.MatchOption
	ch      chan *dbus.Signal
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func watchSignals(conn *dbus.Conn, handle func(*dbus.Signal), matches ...[]dbus.MatchOption) (*signalWatch, error) {
	for i, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			for _, added := range matches[:i] {
				conn.RemoveMatchSignal(added...)
			}
			return nil, fmt.Errorf("add match: %w", mapDBusError(err))
		}
	}

	w := newSignalWatch(conn, matches)
	conn.Signal(w.ch)
	go w.listen(handle)
	return w, nil
}

func newSignalWatch(conn *dbus.Conn, matches [][]dbus.MatchOption) *signalWatch {
	return &signalWatch{
		conn:    conn,
		matches: matches,
		ch:      make(chan *dbus.Signal, signalBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (w *signalWatch) listen(handle func(*dbus.Signal)) {
	defer close(w.stopped)
	for {
		select {
		case sig, ok := <-w.ch:
			if !ok {
				return
			}
			if sig != nil {
				handle(sig)
			}
		case <-w.done:
			return
		}
	}
}

// Close stops delivery and removes the match rules. Safe to call repeatedly.
func (w *signalWatch) Close() error {
	var errs []error
	w.once.Do(func() {
		close(w.done)
		<-w.stopped
		w.conn.RemoveSignal(w.ch)
		for _, m := range w.matches {
			if err := w.conn.RemoveMatchSignal(m...); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// propertiesChangedMatch matches PropertiesChanged for one interface on path.
func propertiesChangedMatch(path dbus.ObjectPath, iface string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, iface),
	}
}

// namespaceChangedMatch matches PropertiesChanged for every object under path.
func namespaceChangedMatch(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchPathNamespace(path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
}

// changedProperties decodes a PropertiesChanged signal body. ok is false for
// any other signal.
func changedProperties(sig *dbus.Signal) (iface string, changed map[string]dbus.Variant, ok bool) {
	if sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return "", nil, false
	}
	iface, ok = sig.Body[0].(string)
	if !ok {
		return "", nil, false
	}
	changed, ok = sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	if len(sig.Body) > 2 {
		// Invalidated properties count as changed with no value.
		if invalidated, isList := sig.Body[2].([]string); isList {
			for _, name := range invalidated {
				if _, exists := changed[name]; !exists {
					changed[name] = dbus.Variant{}
				}
			}
		}
	}
	return iface, changed, true
}

// nameHasOwner reports whether a well-known bus name is currently owned. A
// nil conn means no bus, so nothing is owned.
func nameHasOwner(conn *dbus.Conn, name string) bool {
	if conn == nil {
		return false
	}
	var has bool
	err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&has)
	return err == nil && has
}

// getProperty reads one property into out.
func getProperty(conn *dbus.Conn, dest string, path dbus.ObjectPath, iface, prop string, out any) error {
	v, err := conn.Object(dest, path).GetProperty(iface + "." + prop)
	if err != nil {
		return mapDBusError(err)
	}
	if err := dbus.Store([]any{v.Value()}, out); err != nil {
		return fmt.Errorf("decode %s.%s: %w", iface, prop, err)
	}
	return nil
}

// mapDBusError tags well-known D-Bus failures with the telemetry sentinels.
func mapDBusError(err error) error {
	var dErr dbus.Error
	var dErrPtr *dbus.Error
	name := ""
	switch {
	case errors.As(err, &dErrPtr):
		name = dErrPtr.Name
	case errors.As(err, &dErr):
		name = dErr.Name
	default:
		return err
	}

	switch {
	case name == "org.freedesktop.DBus.Error.AccessDenied",
		strings.HasSuffix(name, ".PermissionDenied"),
		strings.HasSuffix(name, ".NotAuthorized"):
		return fmt.Errorf("%w: %w", telemetry.ErrDenied, err)
	case name == "org.freedesktop.DBus.Error.ServiceUnknown",
		name == "org.freedesktop.DBus.Error.UnknownObject",
		name == "org.freedesktop.DBus.Error.UnknownMethod",
		name == "org.freedesktop.DBus.Error.UnknownInterface",
		name == "org.freedesktop.DBus.Error.UnknownProperty",
		name == "org.freedesktop.DBus.Error.NameHasNoOwner":
		return fmt.Errorf("%w: %w", telemetry.ErrUnsupported, err)
	default:
		return err
	}
}

// negotiateRead turns the outcome of a trial read into a capability.
func negotiateRead(err error) stream.Capability {
	switch {
	case err == nil:
		return stream.Supported
	case errors.Is(err, telemetry.ErrDenied):
		return stream.Denied
	default:
		return stream.Unsupported
	}
}
