package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Issue outcome label values
const (
	OutcomeIssued   = "issued"
	OutcomeReturned = "returned"
	OutcomeNoCopies = "no_copies"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	IssueOutcomes  *prometheus.CounterVec
	ReturnOutcomes *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New creates a registry with the service collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		IssueOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "library_issue_requests_total",
			Help: "Issue attempts by outcome.",
		}, []string{"outcome"}),
		ReturnOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "library_return_requests_total",
			Help: "Return attempts by outcome.",
		}, []string{"outcome"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
