// Package metrics exposes Prometheus collectors for admission outcomes,
// promotions, webhook handling and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	admissions  *prometheus.CounterVec
	promotions  *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "transitions_total",
			Help:      "Registration transitions by operation and resulting status.",
		}, []string{"operation", "status"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "promotions_total",
			Help:      "Waitlist promotions by source.",
		}, []string{"source"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "admission",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(
		m.admissions,
		m.promotions,
		m.webhooks,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Transition counts a committed registration transition.
func (m *Metrics) Transition(operation, status string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(operation, status).Inc()
}

// Promotion counts a registration reached through the waitlist or an override.
func (m *Metrics) Promotion(source string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(source).Inc()
}

// Webhook counts a payment webhook delivery by type and outcome.
func (m *Metrics) Webhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(eventType, outcome).Inc()
}

// ObserveHTTP records one request's latency.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
