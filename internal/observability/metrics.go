// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Uplink metrics
	ConnectsTotal     prometheus.Counter
	RetriesTotal      prometheus.Counter
	NodeswitchesTotal prometheus.Counter
	RoundsTotal       prometheus.Counter
	Online            prometheus.Gauge

	// Call metrics
	CallsInFlight      prometheus.Gauge
	CallTimeoutsTotal  prometheus.Counter
	FramesDroppedTotal prometheus.Counter

	// Health metrics
	LedgersClosedTotal  prometheus.Counter
	ProbeLatencySeconds prometheus.Histogram

	// Recorder metrics
	LedgerClosesStored  prometheus.Counter
	HealthSamplesStored prometheus.Counter
	StoreErrors         *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "xrpl_uplink"
	}

	return &Metrics{
		ConnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "connects_total",
			Help:      "Total number of successful transport opens",
		}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "retries_total",
			Help:      "Total number of reconnect retries scheduled",
		}),
		NodeswitchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "nodeswitches_total",
			Help:      "Total number of endpoint rotations after attempt exhaustion",
		}),
		RoundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "rounds_total",
			Help:      "Total number of full wraps around the endpoint list",
		}),
		Online: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "online",
			Help:      "Whether the uplink is currently online (0 or 1)",
		}),
		CallsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "in_flight",
			Help:      "Outstanding pending calls plus live subscriptions",
		}),
		CallTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "timeouts_total",
			Help:      "Total number of calls rejected by their deadline",
		}),
		FramesDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames dropped as unparseable",
		}),
		LedgersClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "ledgers_closed_total",
			Help:      "Total number of ledger close events observed",
		}),
		ProbeLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_latency_seconds",
			Help:      "Round-trip latency of server_info probes",
			Buckets:   prometheus.DefBuckets,
		}),
		LedgerClosesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "ledger_closes_stored_total",
			Help:      "Total number of ledger closes persisted",
		}),
		HealthSamplesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "health_samples_stored_total",
			Help:      "Total number of health samples persisted",
		}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "store_errors_total",
			Help:      "Total number of storage errors by store",
		}, []string{"store"}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
