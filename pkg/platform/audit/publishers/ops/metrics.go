package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks what happened to operations-category audit events.
type Metrics struct {
	Stored       prometheus.Counter
	Sampled      prometheus.Counter
	Dropped      prometheus.Counter
	Failures     prometheus.Counter
	CircuitState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Stored: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_ops_stored_total",
			Help: "Operations audit events written to the store",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_ops_sampled_total",
			Help: "Operations audit events skipped by sampling",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_ops_circuit_dropped_total",
			Help: "Operations audit events dropped while the circuit was open",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_ops_store_failures_total",
			Help: "Operations audit events the store rejected",
		}),
		CircuitState: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_audit_ops_circuit_open",
			Help: "1 while the operations audit circuit is open",
		}),
	}
}

func (m *Metrics) setCircuit(open bool) {
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}
