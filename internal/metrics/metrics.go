// Package metrics provides Prometheus metrics for the APEX.BUILD client tools.
// Exports stream, dev-server, and preview-proxy metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for the client tools
type Metrics struct {
	// Agent stream metrics
	StreamConnectsTotal     prometheus.Counter
	StreamReconnectsTotal   *prometheus.CounterVec
	StreamFramesTotal       *prometheus.CounterVec
	StreamHeartbeatTimeouts prometheus.Counter
	StreamFatalErrorsTotal  *prometheus.CounterVec
	StreamsActive           prometheus.Gauge
	StreamBackoffSeconds    prometheus.Histogram

	// Dev-server metrics
	DevServerStartsTotal prometheus.Counter
	DevServerPollsTotal  *prometheus.CounterVec

	// Preview proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyUpgradesTotal prometheus.Counter
	ProxyRouteLookups  *prometheus.CounterVec
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// Agent stream metrics
	m.StreamConnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Total number of agent stream connection attempts",
		},
	)

	m.StreamReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnects by failure class",
		},
		[]string{"reason"},
	)

	m.StreamFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total number of inbound SSE frames by kind",
		},
		[]string{"kind"},
	)

	m.StreamHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of stale connections detected by the heartbeat watchdog",
		},
	)

	m.StreamFatalErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "fatal_errors_total",
			Help:      "Total number of fatal stream errors by class",
		},
		[]string{"class"},
	)

	m.StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of currently open agent streams",
		},
	)

	m.StreamBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apex",
			Subsystem: "stream",
			Name:      "backoff_seconds",
			Help:      "Reconnect backoff delays in seconds",
			Buckets:   []float64{.5, 1, 2, 4, 8, 16, 30, 60},
		},
	)

	// Dev-server metrics
	m.DevServerStartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "devserver",
			Name:      "starts_total",
			Help:      "Total number of dev-server start requests issued",
		},
	)

	m.DevServerPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "devserver",
			Name:      "polls_total",
			Help:      "Total number of dev-server status polls by result",
		},
		[]string{"status"},
	)

	// Preview proxy metrics
	m.ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of proxied preview requests by status code",
		},
		[]string{"status"},
	)

	m.ProxyUpgradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "proxy",
			Name:      "upgrades_total",
			Help:      "Total number of WebSocket upgrades proxied (HMR/live-reload)",
		},
	)

	m.ProxyRouteLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "proxy",
			Name:      "route_lookups_total",
			Help:      "Total number of preview route resolutions by cache outcome",
		},
		[]string{"outcome"},
	)

	return m
}
