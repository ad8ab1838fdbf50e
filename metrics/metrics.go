// Package metrics exposes the engine's Prometheus collectors. All
// collectors are registered on the default registry and served at
// /metrics by the API router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts sessions reaching each terminal status.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "sessions_total",
		Help:      "Terminal sessions by status.",
	}, []string{"status"})

	// SessionDuration observes wall-clock session duration.
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storelens",
		Name:      "session_duration_seconds",
		Help:      "Wall-clock duration of a session.",
		Buckets:   []float64{5, 15, 30, 60, 120, 240, 480},
	})

	// PageTasksTotal counts page tasks by page type and outcome.
	PageTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "page_tasks_total",
		Help:      "Page tasks by page type and terminal status.",
	}, []string{"page_type", "status"})

	// NavAttemptsTotal counts navigation attempts by classification.
	NavAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "nav_attempts_total",
		Help:      "Navigation attempts by outcome classification.",
	}, []string{"outcome"})

	// OverlayEventsTotal counts overlay actions by kind and result.
	OverlayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "overlay_events_total",
		Help:      "Overlay actions by action and result.",
	}, []string{"action", "result"})

	// LockTimeoutsTotal counts sessions failed on lock acquisition.
	LockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "lock_timeouts_total",
		Help:      "Sessions failed because the domain lock timed out.",
	})

	// PDPDiscoveryTotal counts PDP discovery outcomes.
	PDPDiscoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storelens",
		Name:      "pdp_discovery_total",
		Help:      "PDP discovery outcomes (found, not_found).",
	}, []string{"outcome"})

	// QueueDepth tracks the pending job queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storelens",
		Name:      "queue_depth",
		Help:      "Jobs waiting in the work queue.",
	})
)
