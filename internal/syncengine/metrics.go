// Package syncengine – Prometheus instrumentation for the drain loop.
//
// Label cardinality stays bounded: entity is one of the registered
// collection names, type is create/update/delete, and outcome is one of
// replayed/retried/failed.
package syncengine

import "github.com/prometheus/client_golang/prometheus"

var (
	// replayTotal counts replay attempts by entity, operation type, and outcome.
	replayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_replay_total",
			Help: "Total number of pending-operation replay attempts.",
		},
		[]string{"entity", "type", "outcome"},
	)

	// drainDuration records how long one full drain pass takes.
	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_drain_duration_seconds",
			Help:    "Duration of pending-operation drain passes in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// pendingOps gauges the replayable backlog after each drain.
	pendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pending_operations",
			Help: "Current number of replayable pending operations.",
		},
	)

	// failedOps gauges operations flagged permanently failed and awaiting
	// manual resolution.
	failedOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_failed_operations",
			Help: "Current number of permanently failed pending operations.",
		},
	)
)

func init() {
	prometheus.MustRegister(replayTotal, drainDuration, pendingOps, failedOps)
}
