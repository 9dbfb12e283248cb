// Package metrics counts transactions and stage outcomes for one run and
// pushes them to a Prometheus Pushgateway.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "stakingctl"

// Registry implements chain.Observer.
type Registry struct {
	registry           *prometheus.Registry
	submittedTotal     prometheus.Counter
	confirmedTotal     prometheus.Counter
	failedTotal        *prometheus.CounterVec
	stageOutcomesTotal *prometheus.CounterVec
	confirmationRounds prometheus.Histogram
}

func NewRegistry() *Registry {
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stakingctl_transactions_submitted_total",
		Help: "Total number of signed transactions broadcast",
	})

	confirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stakingctl_transactions_confirmed_total",
		Help: "Total number of transactions seen in a block",
	})

	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stakingctl_transactions_failed_total",
		Help: "Transactions that were rejected or never confirmed",
	}, []string{"reason"})

	stages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stakingctl_stage_outcomes_total",
		Help: "Lifecycle stages executed, by result",
	}, []string{"stage", "status"})

	rounds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stakingctl_confirmation_rounds",
		Help:    "Rounds waited between broadcast and confirmation",
		Buckets: []float64{0, 1, 2, 3, 4},
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submitted, confirmed, failed, stages, rounds)

	return &Registry{
		registry:           r,
		submittedTotal:     submitted,
		confirmedTotal:     confirmed,
		failedTotal:        failed,
		stageOutcomesTotal: stages,
		confirmationRounds: rounds,
	}
}

func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Registry) TxSubmitted(n int) {
	m.submittedTotal.Add(float64(n))
}

func (m *Registry) TxConfirmed(rounds uint64) {
	m.confirmedTotal.Inc()
	m.confirmationRounds.Observe(float64(rounds))
}

func (m *Registry) TxFailed(reason string) {
	m.failedTotal.WithLabelValues(reason).Inc()
}

// StageDone records a stage result; status is "ok" or "failed".
func (m *Registry) StageDone(stage, status string) {
	m.stageOutcomesTotal.WithLabelValues(stage, status).Inc()
}

// Push replaces this run's metric group on the gateway at url.
func (m *Registry) Push(url, runID string) error {
	if url == "" {
		return errors.New("pushgateway url is empty")
	}
	return push.New(url, jobName).
		Gatherer(m.registry).
		Grouping("run", runID).
		Client(&http.Client{Timeout: 10 * time.Second}).
		Push()
}
