package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/monitor"
)

// sleepTracker logs how much charge a suspend cost.
type sleepTracker struct {
	read func() (monitor.BatteryReading, error)
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	asleep  bool
	level   float64
	startAt time.Time
}

func (t *sleepTracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	// Strip monotonic so Sub uses wall clock across suspend.
	return time.Now().Round(0)
}

func (t *sleepTracker) suspend() {
	r, err := t.read()
	if err != nil {
		t.log.Debug("battery unreadable before sleep", "err", err)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.asleep = true
	t.level = r.Level
	t.startAt = t.clock()
}

func (t *sleepTracker) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.asleep {
		return
	}
	t.asleep = false

	r, err := t.read()
	if err != nil {
		t.log.Debug("battery unreadable after wake", "err", err)
		return
	}
	slept := t.clock().Sub(t.startAt)
	t.log.Info("battery drain during sleep",
		"before_pct", t.level,
		"after_pct", r.Level,
		"drained_pct", t.level-r.Level,
		"slept", slept.Round(time.Second),
	)
}
