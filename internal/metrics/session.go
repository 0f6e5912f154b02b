// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "adaptd",
		Name:      "active_sessions",
		Help:      "Number of sessions currently in the Active state",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "sessions_total",
		Help:      "Session lifecycle terminations by reason",
	}, []string{"reason"})

	commandsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "commands_emitted_total",
		Help:      "Adaptation commands emitted by kind and reason",
	}, []string{"kind", "reason"})

	transportWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "transport_write_failures_total",
		Help:      "Failed outbound transport writes",
	})
)

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the gauge and counts the termination reason
// ("disconnect", "idle_timeout", "shutdown", "error").
func SessionClosed(reason string) {
	activeSessions.Dec()
	sessionsTotal.WithLabelValues(reason).Inc()
}

// RecordCommand counts one emitted adaptation command.
func RecordCommand(kind, reason string) {
	if reason == "" {
		reason = "none"
	}
	commandsEmitted.WithLabelValues(kind, reason).Inc()
}

// RecordTransportWriteFailure counts one failed outbound write.
func RecordTransportWriteFailure() { transportWriteFailures.Inc() }
