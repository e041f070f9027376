package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the session module.
type Metrics struct {
	SessionsCreated prometheus.Counter
	Payments        *prometheus.CounterVec
	Allocations     *prometheus.CounterVec
	PaymentDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "awardvote_sessions_created_total",
			Help: "Voting sessions opened",
		}),
		Payments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_payments_total",
			Help: "Payment attempts by outcome (success, cancelled, failed)",
		}, []string{"outcome"}),
		Allocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_allocation_changes_total",
			Help: "Accepted and rejected allocation changes by action",
		}, []string{"action", "result"}),
		PaymentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "awardvote_payment_duration_seconds",
			Help:    "Time from charge request to terminal payment status",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
		}),
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementPayment(outcome string) {
	m.Payments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAllocation(action, result string) {
	m.Allocations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObservePayment(start time.Time) {
	m.PaymentDuration.Observe(time.Since(start).Seconds())
}
