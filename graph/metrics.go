package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus surface the Runner updates at each lifecycle
// transition: nodes currently in flight, per-node step latency, and the
// loop-detection counter. The retry counter is exposed through
// RetryAttempted, which nothing in the engine calls. All metrics are namespaced
// "pipeline_engine" so they coexist with other Prometheus exporters in
// the same process.
type Metrics struct {
	inflightNodes prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	loopsDetected *prometheus.CounterVec
}

// NewMetrics registers all engine metrics against registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline_engine",
			Name:      "inflight_nodes",
			Help:      "Number of node handlers currently executing.",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline_engine",
			Name:      "step_latency_seconds",
			Help:      "Handler execution duration per node, by shape and outcome status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"shape", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_engine",
			Name:      "retries_total",
			Help:      "Cumulative retry attempts, by node id.",
		}, []string{"node_id"}),
		loopsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_engine",
			Name:      "loop_detected_total",
			Help:      "Loop-detection guard trips, by node id.",
		}, []string{"node_id"}),
	}
}

// NodeStarted increments the in-flight gauge. Callers must pair every
// call with NodeFinished.
func (m *Metrics) NodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

// NodeFinished decrements the in-flight gauge and records latency.
func (m *Metrics) NodeFinished(shape NodeShape, status OutcomeStatus, seconds float64) {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
	m.stepLatency.WithLabelValues(string(shape), string(status)).Observe(seconds)
}

// RetryAttempted increments the retry counter for nodeID.
func (m *Metrics) RetryAttempted(nodeID string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeID).Inc()
}

// LoopDetected increments the loop-detection counter for nodeID.
func (m *Metrics) LoopDetected(nodeID string) {
	if m == nil {
		return
	}
	m.loopsDetected.WithLabelValues(nodeID).Inc()
}
