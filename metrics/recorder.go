// Package metrics implements the Metrics wrapper: a pass-through decorator
// that records latency, hit/miss outcomes, errors, and payload sizes without
// altering the decorated call's behavior.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the Prometheus collectors for a single Engine instance.
type Recorder struct {
	latency       *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	payloadBytes  *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
}

// NewRecorder constructs and registers the cache engine's metric families
// against reg. Pass prometheus.NewRegistry() in tests to avoid collisions
// with the default global registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tiercache",
			Name:      "operation_latency_seconds",
			Help:      "Latency of cache engine operations by tier and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"level", "operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "operation_outcomes_total",
			Help:      "Count of cache operations by outcome (hit, miss, absent, error).",
		}, []string{"level", "operation", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Name:      "operation_errors_total",
			Help:      "Count of cache operation faults by type.",
		}, []string{"level", "operation", "fault_type"}),
		payloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tiercache",
			Name:      "payload_size_bytes",
			Help:      "Size in bytes of encoded values written to the shared tier.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tiercache",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}, []string{"name"}),
	}
	reg.MustRegister(r.latency, r.outcomes, r.errors, r.payloadBytes, r.breakerState)
	return r
}

// ObserveLatency records how long an operation against a tier took.
func (r *Recorder) ObserveLatency(level, operation string, d time.Duration) {
	r.latency.WithLabelValues(level, operation).Observe(d.Seconds())
}

// ObserveOutcome records a hit/miss/absent/error outcome.
func (r *Recorder) ObserveOutcome(level, operation, outcome string) {
	r.outcomes.WithLabelValues(level, operation, outcome).Inc()
}

// ObserveError records a fault, keyed by its Go type name.
func (r *Recorder) ObserveError(level, operation, faultType string) {
	r.errors.WithLabelValues(level, operation, faultType).Inc()
}

// ObservePayloadSize records the encoded size of a value written through
// the codec.
func (r *Recorder) ObservePayloadSize(operation string, bytes int) {
	r.payloadBytes.WithLabelValues(operation).Observe(float64(bytes))
}

// SetBreakerState records the breaker's current state as a gauge, matching
// the convention oriys-nova uses for its own circuit breaker gauge.
func (r *Recorder) SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "closed":
		v = 0
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	r.breakerState.WithLabelValues(name).Set(v)
}

// Timer returns a function that, when called, records the elapsed time
// since Timer was invoked.
func (r *Recorder) Timer(level, operation string) func() {
	start := time.Now()
	return func() { r.ObserveLatency(level, operation, time.Since(start)) }
}
