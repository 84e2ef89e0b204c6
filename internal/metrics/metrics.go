package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the savings service.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	SavedAmountTotal prometheus.Counter

	AdvisorRequestsTotal *prometheus.CounterVec
	AdvisorDuration      prometheus.Histogram

	TransfersTotal   *prometheus.CounterVec
	WithdrawalsTotal *prometheus.CounterVec

	PersistenceErrorsTotal prometheus.Counter
	EventsPublishedTotal   *prometheus.CounterVec
}

// New registers the collectors once per process and returns them.
//
// Metrics:
//   - roundup_decisions_total{source}
//   - roundup_saved_kes_total
//   - roundup_advisor_requests_total{outcome}
//   - roundup_advisor_duration_seconds
//   - roundup_transfers_total{result}
//   - roundup_withdrawals_total{result}
//   - roundup_persistence_errors_total
//   - roundup_events_published_total{result}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DecisionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundup_decisions_total",
					Help: "Roundup decisions by the path that produced them",
				},
				[]string{"source"}, // basic, assisted, delegated, fallback
			),
			SavedAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "roundup_saved_kes_total",
				Help: "Total KES diverted to savings by roundup decisions",
			}),
			AdvisorRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundup_advisor_requests_total",
					Help: "Advisor requests by outcome",
				},
				[]string{"outcome"}, // ok, error, rate_limited
			),
			AdvisorDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "roundup_advisor_duration_seconds",
				Help:    "Advisor round-trip latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			}),
			TransfersTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundup_transfers_total",
					Help: "Savings transfers by result",
				},
				[]string{"result"}, // initiated, completed, failed
			),
			WithdrawalsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundup_withdrawals_total",
					Help: "Withdrawals by result",
				},
				[]string{"result"},
			),
			PersistenceErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "roundup_persistence_errors_total",
				Help: "Failed writes to the transaction store",
			}),
			EventsPublishedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundup_events_published_total",
					Help: "Change-feed events by publish result",
				},
				[]string{"result"},
			),
		}
	})
	return globalMetrics
}

// RecordDecision counts a decision and the amount it saves.
func (m *Metrics) RecordDecision(source string, saved float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(source).Inc()
	if saved > 0 {
		m.SavedAmountTotal.Add(saved)
	}
}

// ObserveAdvisor records one advisor round trip.
func (m *Metrics) ObserveAdvisor(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AdvisorRequestsTotal.WithLabelValues(outcome).Inc()
	m.AdvisorDuration.Observe(elapsed.Seconds())
}

// RecordTransfer counts a transfer state change.
func (m *Metrics) RecordTransfer(result string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(result).Inc()
}

// RecordWithdrawal counts a withdrawal outcome.
func (m *Metrics) RecordWithdrawal(result string) {
	if m == nil {
		return
	}
	m.WithdrawalsTotal.WithLabelValues(result).Inc()
}

// RecordPersistenceError counts a failed store write.
func (m *Metrics) RecordPersistenceError() {
	if m == nil {
		return
	}
	m.PersistenceErrorsTotal.Inc()
}

// RecordPublish counts a change-feed publish attempt.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(result).Inc()
}
