package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the donation lifecycle Prometheus metrics.
type Metrics struct {
	DonationsRequested prometheus.Counter
	Transitions        *prometheus.CounterVec
	TransitionFailures *prometheus.CounterVec
	ValueTransferred   prometheus.Counter
}

// New creates and registers all donation metrics.
func New() *Metrics {
	return &Metrics{
		DonationsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_donations_requested_total",
			Help: "Total number of donation requests created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_transitions_total",
			Help: "Successful lifecycle transitions by type",
		}, []string{"transition"}),
		TransitionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_transition_failures_total",
			Help: "Rejected lifecycle calls by error code",
		}, []string{"code"}),
		ValueTransferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_value_transferred_total",
			Help: "Total value settled through the ledger in base currency units",
		}),
	}
}

func (m *Metrics) IncrementRequested() {
	m.DonationsRequested.Inc()
}

func (m *Metrics) IncrementTransition(transition string) {
	m.Transitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncrementFailure(code string) {
	m.TransitionFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) AddValueTransferred(amount uint64) {
	m.ValueTransferred.Add(float64(amount))
}
