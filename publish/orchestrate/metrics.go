package orchestrate

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts deployment and bootstrap outcomes of a run. A nil
// *Metrics records nothing.
type Metrics struct {
	contracts *prometheus.CounterVec
	actions   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		contracts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corn_deploy_contracts_total",
			Help: "Contracts handled by the topology resolver, by outcome (deployed, reused, failed).",
		}, []string{"contract", "outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corn_bootstrap_actions_total",
			Help: "Bootstrap actions executed, by policy and outcome (ok, failed, skipped).",
		}, []string{"policy", "outcome"}),
	}
	reg.MustRegister(m.contracts, m.actions)
	return m
}

func (m *Metrics) contract(name, outcome string) {
	if m == nil {
		return
	}
	m.contracts.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) action(policy string, outcome Outcome) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(policy, string(outcome)).Inc()
}
