// Package metrics exposes Prometheus collectors for solve and analysis calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quantfusion"

// OutcomeOK labels calls that returned without error.
const OutcomeOK = "ok"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// New creates the collectors, including the Go runtime and process ones.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of optimization and risk operations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_outcomes_total",
			Help:      "Optimization and risk operations by outcome",
		}, []string{"operation", "outcome"}),
	}
}

// Observe records one call. The outcome label is OutcomeOK or the domain
// error kind.
func (m *Metrics) Observe(operation string, d time.Duration, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = domain.ErrorKind(err)
	}
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
	m.outcomes.WithLabelValues(operation, outcome).Inc()
}

// Track returns a func that records the call when invoked with its error.
//
//	done := m.Track("risk_parity")
//	res, err := svc.RiskParity(ctx, req)
//	done(err)
func (m *Metrics) Track(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		m.Observe(operation, time.Since(start), err)
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
