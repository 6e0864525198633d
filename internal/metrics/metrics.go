// Package metrics exposes the Prometheus instrumentation for the sync
// layer. Counters are package-level because the repositories and gateways
// that increment them are constructed independently.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemotePushes counts fire-and-forget remote writes by collection and
	// result. A growing error count with working connectivity usually
	// means a schema mismatch, not an outage.
	RemotePushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagestock_remote_pushes_total",
		Help: "Remote write attempts by collection and result.",
	}, []string{"collection", "result"})

	// RealtimeEvents counts change-feed events dispatched into the
	// repositories.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagestock_realtime_events_total",
		Help: "Realtime change-feed events received by collection and operation.",
	}, []string{"collection", "op"})

	// StaleEventsDropped counts realtime updates discarded because they
	// were older than the local copy.
	StaleEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagestock_stale_events_dropped_total",
		Help: "Realtime updates dropped by the last-writer-wins guard.",
	}, []string{"collection"})

	// LowStockAlerts counts emitted low-stock notifications.
	LowStockAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garagestock_low_stock_alerts_total",
		Help: "Low stock notifications sent.",
	})
)
