package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for vote submission.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	VotesRecorded    prometheus.Counter
	TallyFailures    prometheus.Counter
	SubmitDuration   prometheus.Histogram
	LockWaitDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "awardvote_submissions_total",
			Help: "Submission attempts by outcome (completed, replayed, failed)",
		}, []string{"outcome"}),
		VotesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "awardvote_votes_recorded_total",
			Help: "Vote records confirmed by the record store",
		}),
		TallyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "awardvote_tally_update_failures_total",
			Help: "Nominee tally updates that were logged and skipped",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "awardvote_submit_duration_seconds",
			Help:    "Duration of a full submission including tally updates",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LockWaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "awardvote_tally_lock_wait_seconds",
			Help:    "Time spent waiting for a per-nominee tally lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddVotesRecorded(n int) {
	m.VotesRecorded.Add(float64(n))
}

func (m *Metrics) IncrementTallyFailure() {
	m.TallyFailures.Inc()
}

func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveLockWait(start time.Time) {
	m.LockWaitDuration.Observe(time.Since(start).Seconds())
}
