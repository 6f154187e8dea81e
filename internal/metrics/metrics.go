// Package metrics provides Prometheus metrics for the eco-monitor daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Event streams ──────────────────────────────────────────────────────────

// EventsDelivered counts values handed to a live sink, per channel.
var EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "events_delivered_total",
	Help:      "Total stream events delivered to a subscriber.",
}, []string{"channel"})

// EventsDropped counts native callbacks that arrived with no live sink.
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "events_dropped_total",
	Help:      "Total stream events dropped because no subscriber was active.",
}, []string{"channel"})

// SubscriptionsActive is 1 while a channel has an active subscription.
var SubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ecomonitor",
	Name:      "subscriptions_active",
	Help:      "Active subscriptions per channel.",
}, []string{"channel"})

// ─── Bridge ─────────────────────────────────────────────────────────────────

// BridgeCalls counts query calls by method and outcome (ok, or an error code).
var BridgeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "bridge_calls_total",
	Help:      "Total bridge query calls.",
}, []string{"method", "outcome"})

// BridgeCallDuration tracks query latency in seconds.
var BridgeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ecomonitor",
	Name:      "bridge_call_duration_seconds",
	Help:      "Bridge query call duration in seconds.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
}, []string{"method"})

// ─── Journal ────────────────────────────────────────────────────────────────

// JournalWrites counts events appended to the journal.
var JournalWrites = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "journal_writes_total",
	Help:      "Total events written to the event journal.",
})

// JournalErrors counts failed journal writes.
var JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "journal_errors_total",
	Help:      "Total failed event journal writes.",
})

// JournalPruned counts events removed by retention cleanup.
var JournalPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ecomonitor",
	Name:      "journal_pruned_total",
	Help:      "Total events deleted by retention cleanup.",
})
