// Package telemetry exposes circuit, sampling and optimizer activity as
// Prometheus metrics on a private registry.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qaoa"

// Metrics is safe for concurrent use. A nil *Metrics discards every
// observation, so callers can pass it around unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	samples            prometheus.Counter
	sampleDuration     prometheus.Histogram
	sampleFlushes      prometheus.Counter
	iterations         *prometheus.CounterVec
	objective          *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_evaluations_total",
			Help:      "Public circuit evaluations by operation.",
		}, []string{"op"}),
		evaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "circuit_evaluation_duration_seconds",
			Help:      "Circuit evaluation latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"op"}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Control vectors evaluated by the sampler.",
		}),
		sampleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_duration_seconds",
			Help:      "Time to evaluate every requested quantity for one sample.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		sampleFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_flushes_total",
			Help:      "Buffered sample batches written out.",
		}),
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizer_iterations_total",
			Help:      "Optimizer major iterations by method.",
		}, []string{"method"}),
		objective: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "optimizer_objective_value",
			Help:      "Objective value at the latest optimizer iteration.",
		}, []string{"method"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvaluation(op string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(op).Inc()
	m.evaluationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSample(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.sampleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFlush() {
	if m == nil {
		return
	}
	m.sampleFlushes.Inc()
}

func (m *Metrics) ObserveIteration(method string, _ int, value float64) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(method).Inc()
	m.objective.WithLabelValues(method).Set(value)
}
