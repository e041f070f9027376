package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide HTTP metrics. Module-specific metrics live
// next to their module (session, submission, results).
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec
}

// New creates and registers HTTP metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "awardvote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_upstream_errors_total",
			Help: "Errors returned by external services by upstream and category",
		}, []string{"upstream", "category"}),
	}
}

// ObserveRequest records a finished request.
func (m *Metrics) ObserveRequest(method, route, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

// IncrementUpstreamError counts a failed call to an external dependency.
func (m *Metrics) IncrementUpstreamError(upstream, category string) {
	m.UpstreamErrors.WithLabelValues(upstream, category).Inc()
}
