package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	debal "go-debal"
)

const namespace = "debal"

var (
	electionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elections_total",
			Help:      "Count of leader elections by outcome (succeeded, vacant).",
		},
		[]string{"outcome"},
	)
	rebalancingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalancing_total",
			Help:      "Count of rebalancing transfers by outcome (succeeded, failed).",
		},
		[]string{"outcome"},
	)
	rebalancedAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalanced_amount_total",
			Help:      "Total amount moved by successful rebalancing transfers.",
		},
	)
	leaderChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leader_changes_total",
			Help:      "Count of times a different node became leader.",
		},
	)
	leaderTermStart = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader_term_start_seconds",
			Help:      "Simulated time in seconds at which the current leader term started.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Only the first call registers.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(electionsTotal)
		reg.MustRegister(rebalancingTotal)
		reg.MustRegister(rebalancedAmountTotal)
		reg.MustRegister(leaderChangesTotal)
		reg.MustRegister(leaderTermStart)
	})
}

// RecordElection records an election outcome.
func RecordElection(outcome string) {
	electionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRebalancing records a transfer outcome and, for successes, the amount moved.
func RecordRebalancing(outcome string, amount float64) {
	rebalancingTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeSucceeded && amount > 0 {
		rebalancedAmountTotal.Add(amount)
	}
}

// RecordLeaderTerm records the start of a new leader term.
func RecordLeaderTerm(changed bool, seconds float64) {
	if changed {
		leaderChangesTotal.Inc()
	}
	leaderTermStart.Set(seconds)
}

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeVacant    = "vacant"
)

// Sink feeds scheduler events into the package metrics.
type Sink struct{}

// Emit implements debal.EventSink.
func (Sink) Emit(e debal.Event) {
	switch e.Type {
	case debal.EventElectionSucceeded:
		RecordElection(outcomeSucceeded)
		RecordLeaderTerm(false, e.Time.Seconds())
	case debal.EventElectionVacant:
		RecordElection(outcomeVacant)
	case debal.EventLeaderChanged:
		RecordLeaderTerm(true, e.Time.Seconds())
	case debal.EventRebalancingSucceeded:
		RecordRebalancing(outcomeSucceeded, e.Amount)
	case debal.EventRebalancingFailed:
		RecordRebalancing(outcomeFailed, 0)
	}
}
