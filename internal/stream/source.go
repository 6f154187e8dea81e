// Package stream implements single-subscriber event stream managers that
// forward native observer callbacks onto one message-handling goroutine.
package stream

import (
	"errors"
	"sync"
)

// Capability is the outcome of negotiating a native source at subscribe time.
type Capability int

const (
	Unsupported Capability = iota
	Denied
	Supported
)

func (c Capability) String() string {
	switch c {
	case Supported:
		return "supported"
	case Denied:
		return "denied"
	default:
		return "unsupported"
	}
}

// Handle is a registered native observer. Close deregisters it and is safe
// to call more than once.
type Handle interface {
	Close() error
}

type onceHandle struct {
	once sync.Once
	fn   func() error
	err  error
}

func (h *onceHandle) Close() error {
	h.once.Do(func() {
		if h.fn != nil {
			h.err = h.fn()
		}
	})
	return h.err
}

// HandleFunc wraps a release function into a Handle that runs it at most once.
func HandleFunc(fn func() error) Handle {
	return &onceHandle{fn: fn}
}

// Source is one native notification source for a telemetry kind.
//
// Negotiate reports whether the source can be used on this system. Register
// installs the native observer; emit may be called from any goroutine,
// including synchronously from Register for an initial value.
type Source[T any] interface {
	Negotiate() Capability
	Register(emit func(T)) (Handle, error)
}

// ErrNotSupported is returned by Register when no backend is usable.
var ErrNotSupported = errors.New("stream source not supported")
