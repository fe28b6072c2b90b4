package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. It implements
// detection.Observer so the orchestrator reports inference timings here.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	failedInference  *prometheus.CounterVec
	detectedEntities *prometheus.CounterVec
	inferenceTime    *prometheus.HistogramVec
}

// NewMetrics creates and registers the service collectors on a private
// prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Requests to the API",
		}, []string{"endpoint"}),
		failedInference: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failed_inference_total",
			Help: "Failed inference attempts",
		}, []string{"detector"}),
		detectedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detected_entities_total",
			Help: "Entities returned by detectors before resolution",
		}, []string{"detector"}),
		inferenceTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inference_time_seconds",
			Help:    "Time taken for inference",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"detector"}),
	}
	m.registry.MustRegister(m.requests, m.failedInference, m.detectedEntities, m.inferenceTime)
	return m
}

// ObservePredict implements detection.Observer.
func (m *Metrics) ObservePredict(detector string, elapsed time.Duration, entities int, err error) {
	m.inferenceTime.WithLabelValues(detector).Observe(elapsed.Seconds())
	if err != nil {
		m.failedInference.WithLabelValues(detector).Inc()
		return
	}
	m.detectedEntities.WithLabelValues(detector).Add(float64(entities))
}

// IncRequest counts one request against an endpoint.
func (m *Metrics) IncRequest(endpoint string) {
	m.requests.WithLabelValues(endpoint).Inc()
}

// Handler serves the collectors in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
