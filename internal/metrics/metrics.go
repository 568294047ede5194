// Package metrics exposes Prometheus collectors for automation runs, relay
// dispatches and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/relay"
)

const namespace = "threads_agent"

// Metrics implements the step observer of the automation orchestrator and
// the relay observer of the coordinator.
type Metrics struct {
	gatherer prometheus.Gatherer

	stepDuration  *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	relayTotal    *prometheus.CounterVec
	relayDuration prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict. A nil reg uses a fresh registry.
func MustNewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "step_duration_seconds",
			Help:      "Duration of each automation step.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"step", "status"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "step_failures_total",
			Help:      "Automation steps that failed, by error code.",
		}, []string{"step", "code"}),
		relayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dispatches_total",
			Help:      "Relay dispatches by outcome.",
		}, []string{"outcome"}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of relay dispatches.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.stepDuration, m.stepFailures, m.relayTotal, m.relayDuration, m.httpRequests, m.httpDuration)
	return m
}

// ObserveStep records one automation step.
func (m *Metrics) ObserveStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		code := apperr.CodeOf(err)
		if code == "" {
			code = "UNKNOWN"
		}
		m.stepFailures.WithLabelValues(step, code).Inc()
	}
	m.stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// ObserveRelay records one relay dispatch.
func (m *Metrics) ObserveRelay(res relay.Result, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	switch {
	case res.Success && res.Recovered:
		outcome = "recovered"
	case res.Success:
		outcome = "success"
	}
	m.relayTotal.WithLabelValues(outcome).Inc()
	m.relayDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
