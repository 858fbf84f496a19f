// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TerminalSessions tracks the number of live pseudo-terminal sessions.
	TerminalSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raspterm_terminal_sessions",
			Help: "Number of live pseudo-terminal sessions",
		},
	)

	// TerminalTeardowns counts session teardowns by cause.
	TerminalTeardowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspterm_terminal_teardowns_total",
			Help: "Terminal session teardowns by cause (stop, exit, detach, replace, stale, shutdown)",
		},
		[]string{"cause"},
	)

	// WSConnections tracks attached websocket connections.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raspterm_ws_connections",
			Help: "Number of attached real-time connections",
		},
	)

	// StatsSubscribers tracks the size of the live telemetry subscriber set.
	StatsSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raspterm_stats_subscribers",
			Help: "Number of connections subscribed to live telemetry",
		},
	)

	// StatsSamples counts telemetry samples by result (ok, error).
	StatsSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspterm_stats_samples_total",
			Help: "Telemetry samples taken, by result",
		},
		[]string{"result"},
	)

	// StatsSampleDuration tracks how long one snapshot takes to collect.
	StatsSampleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raspterm_stats_sample_duration_seconds",
			Help:    "Duration of one telemetry snapshot collection in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// StatsRecordsPersisted counts history rows written to the retention store.
	StatsRecordsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raspterm_stats_records_persisted_total",
			Help: "Telemetry records appended to the retention store",
		},
	)
)
