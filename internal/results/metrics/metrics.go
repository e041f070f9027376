package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for results refreshes.
type Metrics struct {
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	TotalVotes      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_results_refreshes_total",
			Help: "Results refreshes by outcome (applied, stale, failed)",
		}, []string{"outcome"}),
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "awardvote_results_refresh_duration_seconds",
			Help:    "Time to fetch and aggregate results",
			Buckets: prometheus.DefBuckets,
		}),
		TotalVotes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "awardvote_results_total_votes",
			Help: "Total votes across all categories in the current snapshot",
		}),
	}
}

func (m *Metrics) IncrementRefresh(outcome string) {
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefresh(start time.Time) {
	m.RefreshDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetTotalVotes(n int) {
	m.TotalVotes.Set(float64(n))
}
