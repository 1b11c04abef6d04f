// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ServerStatusCount is the current server count by status, refreshed
	// once per reconciler pass from the set of in-memory ServerRecords
	// (§4.6, §6).
	ServerStatusCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgekeeper_servers",
			Help: "Current number of servers by status",
		},
		[]string{"status"},
	)

	LaunchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgekeeper_launch_failures_total",
			Help: "Total number of Start attempts that failed to launch the JVM",
		},
	)

	StartupTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgekeeper_startup_timeouts_total",
			Help: "Total number of servers whose startup exceeded the configured timeout",
		},
	)

	CrashesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgekeeper_crashes_total",
			Help: "Total number of servers that exited without a requested stop",
		},
	)

	RconCommandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forgekeeper_rcon_command_duration_seconds",
			Help:    "Duration of RCON commands, including Execute and the supervisor's own ExecuteStop",
			Buckets: prometheus.DefBuckets,
		},
	)

	RconBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgekeeper_rcon_breaker_state",
			Help: "RCON circuit breaker state per address (0=closed, 1=half-open, 2=open)",
		},
		[]string{"addr"},
	)

	BackupsExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgekeeper_backups_executed_total",
			Help: "Total number of scheduled backups that ran",
		},
	)

	BackupsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgekeeper_backups_skipped_total",
			Help: "Total number of scheduled backups skipped without running",
		},
		[]string{"reason"},
	)

	ReconcileDriftCorrectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgekeeper_reconcile_drift_corrected_total",
			Help: "Total number of times the reconciler corrected in-memory state to match the live process",
		},
		[]string{"kind"}, // "adopted", "marked_stopped"
	)

	SubscriberOverflowTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgekeeper_subscriber_overflow_total",
			Help: "Total number of events dropped for a full subscriber channel under drop-oldest backpressure",
		},
		[]string{"channel"}, // "status", "log", "backup"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgekeeper_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forgekeeper_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgekeeper_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgekeeper_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgekeeper_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"message_type"},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forgekeeper_websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forgekeeper_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// SetServerStatusCounts replaces the forgekeeper_servers gauge with
// counts, zeroing every known status label first so a status that drops
// to zero servers is reported as 0 rather than left stale.
func SetServerStatusCounts(counts map[string]int) {
	for _, status := range []string{"stopped", "starting", "running", "stopping", "crashed"} {
		ServerStatusCount.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// RecordLaunchFailure records a Start call that failed to launch the JVM.
func RecordLaunchFailure() {
	LaunchFailuresTotal.Inc()
}

// RecordStartupTimeout records a server marked Running after its startup
// timeout elapsed with the process still alive.
func RecordStartupTimeout() {
	StartupTimeoutsTotal.Inc()
}

// RecordCrash records a server transitioning to Crashed.
func RecordCrash() {
	CrashesTotal.Inc()
}

// RecordRconCommand records the latency of one RCON command.
func RecordRconCommand(duration time.Duration) {
	RconCommandDuration.Observe(duration.Seconds())
}

// SetRconBreakerState records addr's circuit breaker state
// (0=closed, 1=half-open, 2=open).
func SetRconBreakerState(addr string, state float64) {
	RconBreakerState.WithLabelValues(addr).Set(state)
}

// RecordBackupExecuted records a scheduled backup that ran.
func RecordBackupExecuted() {
	BackupsExecutedTotal.Inc()
}

// RecordBackupSkipped records a scheduled backup that was skipped.
func RecordBackupSkipped(reason string) {
	BackupsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordReconcileDriftCorrected records the reconciler correcting
// in-memory state to match what it observed on the live host.
func RecordReconcileDriftCorrected(kind string) {
	ReconcileDriftCorrectedTotal.WithLabelValues(kind).Inc()
}

// RecordSubscriberOverflow records a drop-oldest event on a full
// subscriber channel.
func RecordSubscriberOverflow(channel string) {
	SubscriberOverflowTotal.WithLabelValues(channel).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
