package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamCounters(t *testing.T) {
	EventsDelivered.WithLabelValues("test.channel").Inc()
	EventsDropped.WithLabelValues("test.channel").Add(2)
	SubscriptionsActive.WithLabelValues("test.channel").Set(1)

	if got := testutil.ToFloat64(EventsDropped.WithLabelValues("test.channel")); got != 2 {
		t.Fatalf("events_dropped_total = %v, want 2", got)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"ecomonitor_events_delivered_total",
		"ecomonitor_events_dropped_total",
		"ecomonitor_subscriptions_active",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestBridgeMetrics(t *testing.T) {
	BridgeCalls.WithLabelValues("getBatteryLevel", "ok").Inc()
	BridgeCallDuration.WithLabelValues("getBatteryLevel").Observe(0.002)

	families, _ := prometheus.DefaultGatherer.Gather()
	found := false
	for _, f := range families {
		if f.GetName() == "ecomonitor_bridge_call_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("ecomonitor_bridge_call_duration_seconds not found in gathered metrics")
	}
}

func TestJournalCounters(t *testing.T) {
	before := testutil.ToFloat64(JournalWrites)
	JournalWrites.Inc()
	if got := testutil.ToFloat64(JournalWrites); got != before+1 {
		t.Fatalf("journal_writes_total = %v, want %v", got, before+1)
	}
}
