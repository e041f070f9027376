package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	CheckErrors *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"class"}),
		CheckErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_ratelimit_check_errors_total",
			Help: "Rate limit checks that failed and let the request through",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementCheckErrors(class string) {
	if m == nil {
		return
	}
	m.CheckErrors.WithLabelValues(class).Inc()
}
