// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "adaptd",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adaptd",
		Name:      "circuit_breaker_trips_total",
		Help:      "Circuit breaker trips by cause",
	}, []string{"name", "cause"})
)

// SetCircuitBreakerState publishes the current breaker state.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerTrip counts one breaker trip.
func RecordCircuitBreakerTrip(name, cause string) {
	circuitBreakerTrips.WithLabelValues(name, cause).Inc()
}
