// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus instrumentation of adaptd.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adaptd",
		Name:      "op_latency_seconds",
		Help:      "Observed latency per operation class",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .2, .5, 1},
	}, []string{"op"})

	latencyViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "latency_violations_total",
		Help:      "Latency budget breaches per operation class",
	}, []string{"op"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "adaptd",
		Name:      "inbound_queue_depth",
		Help:      "Current inbound queue depth per session",
	}, []string{"session_id"})

	busyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "busy_rejections_total",
		Help:      "Events rejected because the inbound queue was full",
	})

	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "events_processed_total",
		Help:      "Inbound events processed per outcome",
	}, []string{"outcome"})
)

// ObserveLatency records one measured operation latency.
func ObserveLatency(op string, d time.Duration) {
	opLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordLatencyViolation counts one budget breach for the operation class.
func RecordLatencyViolation(op string) {
	latencyViolations.WithLabelValues(op).Inc()
}

// SetQueueDepth reports the current inbound queue depth of a session.
func SetQueueDepth(sessionID string, depth int) {
	queueDepth.WithLabelValues(sessionID).Set(float64(depth))
}

// DropQueueDepth removes the per-session gauge when the session closes.
func DropQueueDepth(sessionID string) {
	queueDepth.DeleteLabelValues(sessionID)
}

// RecordBusyRejection counts one Busy backpressure rejection.
func RecordBusyRejection() { busyRejections.Inc() }

// RecordEventProcessed counts one processed event by outcome
// ("ok", "numeric_fault", "persistence_error", "discarded").
func RecordEventProcessed(outcome string) {
	eventsProcessed.WithLabelValues(outcome).Inc()
}
